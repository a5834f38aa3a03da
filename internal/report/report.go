// Package report renders the migration review report: a single HTML page
// summarizing migrated articles, their images and links, and everything that
// still needs a human look.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/knowledgeops/kbmigrate/internal/models"
)

// Stats is the content summary block at the top of the report.
type Stats struct {
	Articles        int
	Images          int
	Links           int
	WithImageErrors int
	NeedsReview     int
}

// ImageView is one image row under an article.
type ImageView struct {
	ID            string
	StagedPath    string
	TargetURL     string
	Width         string
	Height        string
	DownloadError string
	UploadError   string
}

// ArticleView is one article section in the report.
type ArticleView struct {
	ID              string
	Title           string
	Description     string
	WebURL          string
	TargetURL       string
	ProcessingError string
	HasImageErrors  bool
	Images          []ImageView
	Links           []string
	Content         template.HTML
}

// Data feeds the report template.
type Data struct {
	GeneratedAt time.Time
	Stats       Stats
	Articles    []ArticleView
	NeedsReview []ArticleView
	Ledger      []models.LedgerEntry
}

var slugStrip = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)

// articleURL builds the target knowledge-base deep link for a published
// article.
func articleURL(base, title, sysID string) string {
	if sysID == "" {
		return ""
	}
	slug := strings.ReplaceAll(strings.ToLower(slugStrip.ReplaceAllString(title, "")), " ", "-")
	return fmt.Sprintf("%s/now/nav/ui/classic/params/target/kb/en/%s?id=kb_article_view&sys_kb_id=%s", base, slug, sysID)
}

// absolutizeAttachments prefixes attachment image sources with the target
// base URL so the report renders them straight off the live instance.
func absolutizeAttachments(body, base string) string {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(body), ctx)
	if err != nil {
		return body
	}
	var fix func(*html.Node)
	fix = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			for i, a := range n.Attr {
				if a.Key == "src" && strings.HasPrefix(a.Val, "/sys_attachment.do") {
					n.Attr[i].Val = base + a.Val
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			fix(c)
		}
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		fix(n)
		html.Render(&buf, n)
	}
	return buf.String()
}

func imageView(a models.Asset, base string) ImageView {
	v := ImageView{
		ID:            a.ID,
		StagedPath:    a.StagedPath,
		DownloadError: a.DownloadError,
		UploadError:   a.UploadError,
	}
	if a.TargetID != "" {
		v.TargetURL = base + "/sys_attachment.do?sys_id=" + a.TargetID
	}
	if w, ok := a.Width.Float(); ok {
		v.Width = fmt.Sprintf("%g", w)
	}
	if h, ok := a.Height.Float(); ok {
		v.Height = fmt.Sprintf("%g", h)
	}
	return v
}

func articleView(r *models.Record, base string) ArticleView {
	v := ArticleView{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		WebURL:          r.WebURL,
		TargetURL:       articleURL(base, r.Title, r.TargetID),
		ProcessingError: r.ProcessingError,
		Links:           r.Links,
		Content:         template.HTML(absolutizeAttachments(r.Body, base)),
	}
	for _, a := range r.Assets {
		iv := imageView(a, base)
		if iv.DownloadError != "" || iv.UploadError != "" {
			v.HasImageErrors = true
		}
		v.Images = append(v.Images, iv)
	}
	return v
}

// Build splits records into migrated and needs-review sections, both sorted
// by title, and derives the summary counts. targetBase is the knowledge-base
// web origin used for deep links and inline attachment previews.
func Build(records []*models.Record, ledger []models.LedgerEntry, targetBase string) Data {
	targetBase = strings.TrimRight(targetBase, "/")

	data := Data{GeneratedAt: time.Now(), Ledger: ledger}
	for _, r := range records {
		view := articleView(r, targetBase)
		if r.ProcessingError != "" {
			data.NeedsReview = append(data.NeedsReview, view)
			continue
		}
		data.Articles = append(data.Articles, view)
		data.Stats.Articles++
		data.Stats.Images += len(r.Assets)
		data.Stats.Links += len(r.Links)
		if view.HasImageErrors {
			data.Stats.WithImageErrors++
		}
	}
	data.Stats.NeedsReview = len(data.NeedsReview) + len(ledger)

	byTitle := func(views []ArticleView) {
		sort.Slice(views, func(i, j int) bool {
			return strings.ToLower(views[i].Title) < strings.ToLower(views[j].Title)
		})
	}
	byTitle(data.Articles)
	byTitle(data.NeedsReview)
	return data
}

// Render writes the report HTML for data to w.
func Render(w io.Writer, data Data) error {
	return pageTemplate.Execute(w, data)
}

// WriteFile renders the report to path.
func WriteFile(path string, data Data) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Render(f, data); err != nil {
		f.Close()
		return fmt.Errorf("rendering report: %w", err)
	}
	return f.Close()
}
