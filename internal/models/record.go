package models

// Processing outcomes for a Record. A record is extracted through the Graph
// canvasLayout API when possible, recovered from the rendered page when not,
// and marked failed when both paths are exhausted.
const (
	OutcomePrimary  = "ok-primary"
	OutcomeFallback = "ok-fallback"
	OutcomeFailed   = "failed"
)

// Asset origins, used to de-duplicate images found through more than one path.
const (
	OriginWidget   = "widget"   // image web part in the canvas layout
	OriginMarkup   = "markup"   // imagePlugin placeholder scanned out of the body
	OriginFallback = "fallback" // placeholder found in the scraped page
)

// Record is one SharePoint page on its way into the knowledge base.
// Fields appended by later stages (TargetID, rewritten Body, Links, asset
// sys_ids) are the only mutations allowed after a snapshot is written.
type Record struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	WebURL          string   `json:"webUrl"`
	Body            string   `json:"innerHtml"`
	Outcome         string   `json:"processing_method"`
	ProcessingError string   `json:"processing_error,omitempty"`
	TargetID        string   `json:"sys_id,omitempty"`
	UpdateOK        bool     `json:"article_update_success,omitempty"`
	PublishError    string   `json:"publish_error,omitempty"`
	Assets          []Asset  `json:"images,omitempty"`
	Links           []string `json:"article_links,omitempty"`
}

// Failed reports whether extraction gave up on this record.
func (r *Record) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// Asset is one embedded image belonging to a Record.
type Asset struct {
	ID            string    `json:"id"`
	Width         Dimension `json:"imgWidth"`
	Height        Dimension `json:"imgHeight"`
	SourceRef     string    `json:"imageLink"`
	RecordID      string    `json:"pageId"`
	StagedPath    string    `json:"download_path,omitempty"`
	TargetID      string    `json:"sys_id,omitempty"`
	DownloadError string    `json:"download_error,omitempty"`
	UploadError   string    `json:"upload_error,omitempty"`
	Origin        string    `json:"source,omitempty"`
}

// Uploaded reports whether the asset already carries a target attachment id,
// which is what makes upload runs resumable.
func (a *Asset) Uploaded() bool {
	return a.TargetID != ""
}

// Drive is a named SharePoint document library (storage container). The drive
// list is fetched once per run and never mutated.
type Drive struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
}
