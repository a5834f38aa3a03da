package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/knowledgeops/kbmigrate/internal/models"
)

func testRecords() []*models.Record {
	return []*models.Record{
		{
			ID:      "p1",
			Title:   "Zulu Article",
			WebURL:  "https://x/SitePages/zulu.aspx",
			Body:    `<p>text</p><img src="/sys_attachment.do?sys_id=att-1" alt="">`,
			Outcome: models.OutcomePrimary,
			Links:   []string{"https://x/other"},
			Assets: []models.Asset{
				{ID: "a1", TargetID: "att-1", StagedPath: "images/p1/pic.png", Width: models.Dim(395), Height: models.Dim(200)},
			},
		},
		{
			ID:      "p2",
			Title:   "Alpha Article",
			Body:    "<p>ok</p>",
			Outcome: models.OutcomePrimary,
			Assets: []models.Asset{
				{ID: "a2", DownloadError: "404"},
			},
		},
		{
			ID:              "p3",
			Title:           "Broken Article",
			Outcome:         models.OutcomeFailed,
			ProcessingError: "graph and scrape both failed",
		},
	}
}

func TestBuild(t *testing.T) {
	ledger := []models.LedgerEntry{{ID: "p3", Title: "Broken Article", Error: "graph and scrape both failed"}}
	data := Build(testRecords(), ledger, "https://corp.service-now.com/")

	if len(data.Articles) != 2 || len(data.NeedsReview) != 1 {
		t.Fatalf("articles = %d, needsReview = %d", len(data.Articles), len(data.NeedsReview))
	}
	// Sorted by title, case-insensitive.
	if data.Articles[0].Title != "Alpha Article" || data.Articles[1].Title != "Zulu Article" {
		t.Errorf("order = %q, %q", data.Articles[0].Title, data.Articles[1].Title)
	}

	s := data.Stats
	if s.Articles != 2 || s.Images != 2 || s.Links != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.WithImageErrors != 1 {
		t.Errorf("WithImageErrors = %d, want 1", s.WithImageErrors)
	}
	if s.NeedsReview != 2 {
		t.Errorf("NeedsReview = %d, want review article plus ledger row", s.NeedsReview)
	}

	// Attachment srcs point at the live instance, trailing slash trimmed.
	zulu := data.Articles[1]
	if !strings.Contains(string(zulu.Content), `src="https://corp.service-now.com/sys_attachment.do?sys_id=att-1"`) {
		t.Errorf("Content = %q", zulu.Content)
	}
}

func TestArticleURL(t *testing.T) {
	got := articleURL("https://corp.service-now.com", "Getting Started: FAQ!", "sys-1")
	want := "https://corp.service-now.com/now/nav/ui/classic/params/target/kb/en/getting-started-faq?id=kb_article_view&sys_kb_id=sys-1"
	if got != want {
		t.Errorf("articleURL = %q, want %q", got, want)
	}
	if articleURL("https://x", "T", "") != "" {
		t.Error("unpublished articles have no deep link")
	}
}

func TestRender(t *testing.T) {
	data := Build(testRecords(), nil, "https://corp.service-now.com")
	var buf bytes.Buffer
	if err := Render(&buf, data); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"Zulu Article", "Alpha Article", "Broken Article", "graph and scrape both failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
	// Article bodies render as markup, not escaped text.
	if !strings.Contains(out, "<p>text</p>") {
		t.Error("article content should render unescaped")
	}
}
