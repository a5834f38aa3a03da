package platform

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/knowledgeops/kbmigrate/internal/logger"
	"github.com/knowledgeops/kbmigrate/internal/models"
)

// Web part type id SharePoint assigns to the image widget.
const ImageWebPartID = "d1d91016-032f-456d-98a4-721247c305e8"

// SharePoint wraps the Graph API surface the pipeline consumes: the Site
// Pages list, the page canvas layout, the drive list, and per-file download
// URLs.
type SharePoint struct {
	client *Client
	siteID string
	log    logger.Logger
}

// NewSharePoint binds a SharePoint API to one site.
func NewSharePoint(client *Client, siteID string, log logger.Logger) *SharePoint {
	return &SharePoint{client: client, siteID: siteID, log: log}
}

// ListItem is one entry of the Site Pages list.
type ListItem struct {
	ETag   string `json:"eTag"`
	WebURL string `json:"webUrl"`
	Fields struct {
		Title       string `json:"Title"`
		Description string `json:"Description"`
	} `json:"fields"`
}

// PageID derives the stable page id from the list item eTag, which arrives
// as `"{guid},{version}"`.
func (li ListItem) PageID() string {
	id := li.ETag
	if i := strings.Index(id, ","); i >= 0 {
		id = id[:i]
	}
	return strings.Trim(id, `"`)
}

type listItemsPage struct {
	Value    []ListItem `json:"value"`
	NextLink string     `json:"@odata.nextLink"`
}

// ListPages enumerates every Site Pages item, following continuation links
// until the server stops handing them out. A mid-pagination failure that
// exhausts the transport's retries returns the partial result gathered so
// far together with the error; the caller decides whether partial is enough.
func (sp *SharePoint) ListPages(ctx context.Context, pageSize int) ([]ListItem, error) {
	var all []ListItem
	next := fmt.Sprintf("/sites/%s/lists/%s/items?$expand=fields&$top=%d",
		sp.siteID, url.PathEscape("Site Pages"), pageSize)

	for next != "" {
		var page listItemsPage
		if err := sp.client.GetJSON(ctx, next, nil, &page); err != nil {
			return all, fmt.Errorf("listing site pages: %w", err)
		}
		all = append(all, page.Value...)
		next = page.NextLink
		if next != "" {
			sp.log.Infof("Retrieved %d pages so far...", len(all))
		}
	}
	return all, nil
}

// WebPart is one block inside a canvas layout column. Only the fields the
// extractor reads are modeled; anything else the API sends is dropped.
type WebPart struct {
	ID          string `json:"id"`
	WebPartType string `json:"webPartType"`
	InnerHTML   string `json:"innerHtml"`
	Data        struct {
		Properties struct {
			ImgHeight models.Dimension `json:"imgHeight"`
			ImgWidth  models.Dimension `json:"imgWidth"`
		} `json:"properties"`
		ServerProcessedContent struct {
			ImageSources []struct {
				Value string `json:"value"`
			} `json:"imageSources"`
		} `json:"serverProcessedContent"`
	} `json:"data"`
}

// SitePage is the structured page representation with its canvas layout
// expanded.
type SitePage struct {
	Title        string `json:"title"`
	CanvasLayout struct {
		HorizontalSections []struct {
			Columns []struct {
				WebParts []WebPart `json:"webparts"`
			} `json:"columns"`
		} `json:"horizontalSections"`
	} `json:"canvasLayout"`
}

// GetSitePage fetches the structured representation of one page.
func (sp *SharePoint) GetSitePage(ctx context.Context, pageID string) (*SitePage, error) {
	path := fmt.Sprintf("/sites/%s/pages/%s/microsoft.graph.sitePage", sp.siteID, pageID)
	params := url.Values{"$expand": {"canvasLayout"}}
	var page SitePage
	if err := sp.client.GetJSON(ctx, path, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchRenderedPage retrieves the public rendering of a page, used as the
// scrape fallback when the structured API fails.
func (sp *SharePoint) FetchRenderedPage(ctx context.Context, webURL string) (string, error) {
	body, err := sp.client.Get(ctx, webURL, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

type drivesPage struct {
	Value []models.Drive `json:"value"`
}

// ListDrives returns the site's document libraries. The result is cached by
// callers for the whole run.
func (sp *SharePoint) ListDrives(ctx context.Context) ([]models.Drive, error) {
	path := fmt.Sprintf("/sites/%s/drives", sp.siteID)
	params := url.Values{"select": {"weburl,system,name,id"}}
	var page drivesPage
	if err := sp.client.GetJSON(ctx, path, params, &page); err != nil {
		return nil, fmt.Errorf("listing drives: %w", err)
	}
	return page.Value, nil
}

type driveItem struct {
	DownloadURL string `json:"@microsoft.graph.downloadUrl"`
}

// DriveItemDownloadURL asks Graph for the short-lived direct download URL of
// a file within a drive.
func (sp *SharePoint) DriveItemDownloadURL(ctx context.Context, driveID, filePath string) (string, error) {
	path := fmt.Sprintf("/sites/%s/drives/%s/root:/%s", sp.siteID, driveID, escapePath(filePath))
	var item driveItem
	if err := sp.client.GetJSON(ctx, path, nil, &item); err != nil {
		return "", err
	}
	if item.DownloadURL == "" {
		return "", fmt.Errorf("no download URL for %s", filePath)
	}
	return item.DownloadURL, nil
}

// DownloadTo streams a pre-signed download URL into w.
func (sp *SharePoint) DownloadTo(ctx context.Context, downloadURL string, w io.Writer) error {
	return sp.client.Download(ctx, downloadURL, w)
}

// GraphImagePrefix is prepended to site-relative image references so they can
// later be resolved like any other Graph drive URL.
func (sp *SharePoint) GraphImagePrefix() string {
	return fmt.Sprintf("%s/sites/%s/drive/root:", sp.client.BaseURL(), sp.siteID)
}

// escapePath percent-encodes each path segment while keeping separators.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
