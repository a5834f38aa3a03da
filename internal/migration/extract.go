package migration

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/knowledgeops/kbmigrate/internal/logger"
	"github.com/knowledgeops/kbmigrate/internal/models"
	"github.com/knowledgeops/kbmigrate/internal/platform"
)

// Attribute SharePoint places on the rich-content region of a rendered page.
const richTextFeatureTag = "Rich Text Editor"

// Extractor turns a discovered list item into a Record: body markup plus the
// embedded image descriptors. The structured canvas-layout API is tried
// first; scraping the rendered page is the fallback; only when both fail is
// the record marked failed.
type Extractor struct {
	sp  *platform.SharePoint
	log logger.Logger
}

// NewExtractor builds an Extractor over the source API.
func NewExtractor(sp *platform.SharePoint, log logger.Logger) *Extractor {
	return &Extractor{sp: sp, log: log}
}

// Extract never returns an error: failures are recorded on the Record so
// sibling extractions keep running and the snapshot keeps the evidence.
func (e *Extractor) Extract(ctx context.Context, item platform.ListItem, includeImages bool) *models.Record {
	rec := &models.Record{
		ID:          item.PageID(),
		Title:       item.Fields.Title,
		Description: item.Fields.Description,
		WebURL:      item.WebURL,
		Outcome:     models.OutcomePrimary,
	}

	page, err := e.sp.GetSitePage(ctx, rec.ID)
	if err == nil {
		e.extractCanvas(rec, page, includeImages)
		return rec
	}

	// Primary path failed; try scraping the rendered page before giving up.
	extractErr := &ExtractionError{RecordID: rec.ID, Err: err}
	e.log.Warnf("Graph extraction failed for %s, attempting page scrape: %v", rec.WebURL, err)

	if rec.WebURL == "" {
		rec.Outcome = models.OutcomeFailed
		rec.ProcessingError = extractErr.Error()
		return rec
	}

	rendered, ferr := e.sp.FetchRenderedPage(ctx, rec.WebURL)
	if ferr == nil {
		if content := richTextRegion(rendered); content != "" {
			rec.Body = content
			rec.Outcome = models.OutcomeFallback
			rec.ProcessingError = extractErr.Error() + " (recovered via page scrape)"
			if includeImages {
				rec.Assets = e.scanPlaceholders(content, rec.ID, models.OriginFallback)
			}
			return rec
		}
	}

	rec.Outcome = models.OutcomeFailed
	rec.ProcessingError = extractErr.Error() + " (page scrape fallback also failed)"
	return rec
}

// extractCanvas walks sections, columns and web parts, copying literal body
// markup and collecting an asset for every image widget.
func (e *Extractor) extractCanvas(rec *models.Record, page *platform.SitePage, includeImages bool) {
	foundWidgets := false
	for _, section := range page.CanvasLayout.HorizontalSections {
		for _, column := range section.Columns {
			for _, wp := range column.WebParts {
				if wp.InnerHTML != "" {
					rec.Body = wp.InnerHTML
				}
				if !includeImages || wp.WebPartType != platform.ImageWebPartID {
					continue
				}
				foundWidgets = true
				var ref string
				if len(wp.Data.ServerProcessedContent.ImageSources) > 0 {
					ref = wp.Data.ServerProcessedContent.ImageSources[0].Value
				}
				rec.Assets = append(rec.Assets, models.Asset{
					ID:        wp.ID,
					Width:     wp.Data.Properties.ImgWidth,
					Height:    wp.Data.Properties.ImgHeight,
					SourceRef: ref,
					RecordID:  rec.ID,
					Origin:    models.OriginWidget,
				})
			}
		}
	}

	// No image widgets but the body may still carry placeholder divs.
	if includeImages && !foundWidgets && rec.Body != "" {
		rec.Assets = append(rec.Assets, e.scanPlaceholders(rec.Body, rec.ID, models.OriginMarkup)...)
		rec.Assets = dedupeAssets(rec.Assets)
	}
}

// scanPlaceholders pattern-matches imagePlugin placeholder elements out of
// markup and turns them into assets. Site-relative image URLs get the Graph
// drive prefix so the resolver sees one canonical absolute shape.
func (e *Extractor) scanPlaceholders(markup, recordID, origin string) []models.Asset {
	root, err := fragmentRoot(markup)
	if err != nil {
		e.log.Warnf("cannot parse body markup of %s: %v", recordID, err)
		return nil
	}

	var assets []models.Asset
	walkNodes([]*html.Node{root}, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "div" || !hasClass(n, "imagePlugin") {
			return
		}
		ref := attrVal(n, "data-imageurl")
		if ref == "" {
			return
		}
		if strings.HasPrefix(ref, "/") {
			ref = e.sp.GraphImagePrefix() + ref
		}
		id := attrVal(n, "data-uniqueid")
		if id == "" {
			id = uuid.NewString()
		}
		asset := models.Asset{
			ID:        id,
			SourceRef: ref,
			RecordID:  recordID,
			Origin:    origin,
		}
		if v := attrVal(n, "data-width"); v != "" {
			asset.Width = models.DimString(v)
		}
		if v := attrVal(n, "data-height"); v != "" {
			asset.Height = models.DimString(v)
		}
		assets = append(assets, asset)
	})
	return assets
}

// richTextRegion isolates the designated rich-content div of a rendered page
// and returns its inner markup, or "" when the page has none.
func richTextRegion(rendered string) string {
	doc, err := html.Parse(strings.NewReader(rendered))
	if err != nil {
		return ""
	}
	region := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" &&
			attrVal(n, "data-sp-feature-tag") == richTextFeatureTag
	})
	if region == nil {
		return ""
	}
	return innerHTML(region)
}

// dedupeAssets drops markup-derived assets whose normalized reference is
// already covered by a widget-derived asset for the same record.
func dedupeAssets(assets []models.Asset) []models.Asset {
	seen := make(map[string]bool)
	for _, a := range assets {
		if a.Origin == models.OriginWidget {
			seen[NormalizeRef(a.SourceRef)] = true
		}
	}
	out := assets[:0]
	for _, a := range assets {
		if a.Origin != models.OriginWidget && seen[NormalizeRef(a.SourceRef)] {
			continue
		}
		out = append(out, a)
	}
	return out
}
