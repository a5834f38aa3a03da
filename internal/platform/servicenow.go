package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/knowledgeops/kbmigrate/internal/logger"
)

const (
	knowledgeTable = "kb_knowledge"
	attachmentPath = "/api/now/attachment/upload"
)

// ServiceNow wraps the knowledge-base side: article create/update on the
// kb_knowledge table and multipart attachment upload.
type ServiceNow struct {
	client *Client
	kbPath string // table API prefix, e.g. /api/now/table
	log    logger.Logger
}

// NewServiceNow binds a ServiceNow API client. kbPath is the table API
// prefix without the trailing table name.
func NewServiceNow(client *Client, kbPath string, log logger.Logger) *ServiceNow {
	if kbPath != "" && kbPath[0] != '/' {
		kbPath = "/" + kbPath
	}
	return &ServiceNow{client: client, kbPath: kbPath, log: log}
}

type snEnvelope struct {
	Result map[string]interface{} `json:"result"`
}

func (sn *ServiceNow) parseResult(body []byte) (map[string]interface{}, error) {
	var env snEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return env.Result, nil
}

// CreateArticle creates a kb_knowledge row and returns the assigned sys_id.
func (sn *ServiceNow) CreateArticle(ctx context.Context, payload map[string]interface{}) (string, error) {
	body, _, err := sn.client.PostJSON(ctx, sn.kbPath+"/"+knowledgeTable, payload)
	if err != nil {
		return "", err
	}
	result, err := sn.parseResult(body)
	if err != nil {
		return "", err
	}
	sysID, _ := result["sys_id"].(string)
	if sysID == "" {
		return "", fmt.Errorf("article created, but no sys_id returned")
	}
	return sysID, nil
}

// UpdateArticle patches an existing article and returns the result fields.
func (sn *ServiceNow) UpdateArticle(ctx context.Context, sysID string, payload map[string]interface{}) (map[string]interface{}, error) {
	body, _, err := sn.client.PatchJSON(ctx, sn.kbPath+"/"+knowledgeTable+"/"+sysID, payload)
	if err != nil {
		return nil, err
	}
	return sn.parseResult(body)
}

// UploadAttachment submits a staged file as a multipart attachment bound to
// the knowledge table and returns the attachment sys_id.
func (sn *ServiceNow) UploadAttachment(ctx context.Context, path, tableSysID string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	hdr.Set("Content-Type", "application/octet-stream")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}
	if err := mw.WriteField("table_name", knowledgeTable); err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}
	if err := mw.WriteField("table_sys_id", tableSysID); err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}

	body, _, err := sn.client.Do(ctx, http.MethodPost, attachmentPath, nil, buf.Bytes(),
		map[string]string{"Content-Type": mw.FormDataContentType()})
	if err != nil {
		return "", err
	}
	result, err := sn.parseResult(body)
	if err != nil {
		return "", err
	}
	sysID, _ := result["sys_id"].(string)
	if sysID == "" {
		return "", fmt.Errorf("attachment uploaded, but no sys_id returned")
	}
	return sysID, nil
}
