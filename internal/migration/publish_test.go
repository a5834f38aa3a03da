package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/knowledgeops/kbmigrate/internal/logger"
	"github.com/knowledgeops/kbmigrate/internal/models"
	"github.com/knowledgeops/kbmigrate/internal/platform"
)

func newTestPublisher(ts *httptest.Server) *Publisher {
	c := platform.NewClient(ts.URL, nil, 5*time.Second, 1, logger.Nop())
	sn := platform.NewServiceNow(c, "api/now/table", logger.Nop())
	p := NewPublisher(sn, "author@corp", "editor@corp", "kb-base-1", "cat-1", logger.Nop())
	p.sleep = func(time.Duration) {}
	return p
}

func TestPublisher_CreateAll(t *testing.T) {
	var got map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/now/table/kb_knowledge" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		fmt.Fprint(w, `{"result":{"sys_id":"art-1"}}`)
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	rec := &models.Record{ID: "page-1", Title: "Getting Started", Body: "<p>hi</p>", Outcome: models.OutcomePrimary}

	stats := p.CreateAll(context.Background(), []*models.Record{rec}, PublishOptions{})
	if stats.Succeeded != 1 {
		t.Fatalf("stats = %+v (error: %s)", stats, rec.PublishError)
	}
	if rec.TargetID != "art-1" {
		t.Errorf("TargetID = %q", rec.TargetID)
	}

	want := map[string]string{
		"sys_updated_by":    "author@corp",
		"sys_created_by":    "editor@corp",
		"workflow_state":    "draft",
		"text":              "<p>hi</p>",
		"short_description": "Getting Started",
		"kb_knowledge_base": "kb-base-1",
		"kb_category":       "cat-1",
		"valid_to":          "2100-01-01",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%q] = %v, want %q", k, got[k], v)
		}
	}
}

func TestPublisher_Create_SkipsExisting(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an already-created article")
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	rec := &models.Record{ID: "page-1", Body: "<p>x</p>", TargetID: "art-9"}

	stats := p.CreateAll(context.Background(), []*models.Record{rec}, PublishOptions{})
	if stats.Skipped != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPublisher_Create_EmptyBodyFailsValidation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a record without a body")
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	rec := &models.Record{ID: "page-1", Title: "Empty"}

	stats := p.CreateAll(context.Background(), []*models.Record{rec}, PublishOptions{})
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !strings.Contains(rec.PublishError, "innerHtml") {
		t.Errorf("PublishError = %q, want validation on innerHtml", rec.PublishError)
	}
}

func TestPublisher_Create_DryRun(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("dry run must make no requests")
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	rec := &models.Record{ID: "page-1", Title: "T", Body: "<p>x</p>"}

	stats := p.CreateAll(context.Background(), []*models.Record{rec}, PublishOptions{DryRun: true})
	if stats.Succeeded != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if rec.TargetID != "" {
		t.Errorf("dry run must not mutate the record, TargetID = %q", rec.TargetID)
	}
}

func TestPublisher_Create_RetriesRateLimit(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"result":{"sys_id":"art-1"}}`)
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	var waits []time.Duration
	p.sleep = func(d time.Duration) { waits = append(waits, d) }

	rec := &models.Record{ID: "page-1", Title: "T", Body: "<p>x</p>"}
	stats := p.CreateAll(context.Background(), []*models.Record{rec}, PublishOptions{})

	if stats.Succeeded != 1 {
		t.Fatalf("stats = %+v (error: %s)", stats, rec.PublishError)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(waits) != 1 || waits[0] != 2*time.Second {
		t.Errorf("waits = %v, want one 2s delay", waits)
	}
}

func TestPublisher_Create_GivesUpAfterRetries(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	rec := &models.Record{ID: "page-1", Title: "T", Body: "<p>x</p>"}

	stats := p.CreateAll(context.Background(), []*models.Record{rec}, PublishOptions{})
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if calls != publishRetries {
		t.Errorf("calls = %d, want %d", calls, publishRetries)
	}
	if rec.PublishError == "" {
		t.Error("PublishError should record the final failure")
	}
}

func TestPublisher_Create_NoRetryOnClientError(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	rec := &models.Record{ID: "page-1", Title: "T", Body: "<p>x</p>"}

	stats := p.CreateAll(context.Background(), []*models.Record{rec}, PublishOptions{})
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (403 is not transient)", calls)
	}
}

func TestPublisher_UpdateAll(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/now/table/kb_knowledge/art-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, `{"result":{"sys_id":"art-1","number":"KB0001","workflow_state":"draft","short_description":"T"}}`)
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	rec := &models.Record{ID: "page-1", Title: "T", Body: "<p>x</p>", TargetID: "art-1"}

	stats := p.UpdateAll(context.Background(), []*models.Record{rec}, PublishOptions{})
	if stats.Succeeded != 1 {
		t.Fatalf("stats = %+v (error: %s)", stats, rec.PublishError)
	}
	if !rec.UpdateOK {
		t.Error("UpdateOK should be set on a complete response")
	}
}

func TestPublisher_Update_MissingSysID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a record without a sys_id")
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	rec := &models.Record{ID: "page-1", Title: "T", Body: "<p>x</p>"}

	stats := p.UpdateAll(context.Background(), []*models.Record{rec}, PublishOptions{})
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !strings.Contains(rec.PublishError, "sys_id") {
		t.Errorf("PublishError = %q", rec.PublishError)
	}
}

func TestPublisher_Update_IncompleteResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"sys_id":"art-1","workflow_state":"draft"}}`)
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	rec := &models.Record{ID: "page-1", Title: "T", Body: "<p>x</p>", TargetID: "art-1"}

	stats := p.UpdateAll(context.Background(), []*models.Record{rec}, PublishOptions{})
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if rec.UpdateOK {
		t.Error("UpdateOK must stay false when result fields are missing")
	}
	if !strings.Contains(rec.PublishError, "number") {
		t.Errorf("PublishError = %q, should name the missing field", rec.PublishError)
	}
}

func TestPublisher_Checkpoint(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"sys_id":"art-1"}}`)
	}))
	defer ts.Close()

	p := newTestPublisher(ts)
	checkpoints := 0
	p.SetCheckpoint(func([]*models.Record) { checkpoints++ })

	rec := &models.Record{ID: "page-1", Title: "T", Body: "<p>x</p>"}
	p.CreateAll(context.Background(), []*models.Record{rec}, PublishOptions{})
	if checkpoints == 0 {
		t.Error("checkpoint should run after the create")
	}
}
