package migration

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/knowledgeops/kbmigrate/internal/models"
)

const bodyFontSize = "font-size: 14px"

// Images wider than maxInlineWidth or taller than maxInlineHeight are scaled
// down to scaledWidth, keeping the aspect ratio. Anything smaller keeps its
// original (rounded) dimensions.
const (
	maxInlineWidth  = 790
	maxInlineHeight = 1000
	scaledWidth     = 395
)

// Rewriter converts extracted body markup into the form the target knowledge
// base expects: image placeholders become attachment img tags, site-relative
// links become absolute, and the markup is normalized for the target editor.
// All passes are structural, over one parsed fragment, and idempotent.
type Rewriter struct {
	webBaseURL string
}

// NewRewriter builds a Rewriter. webBaseURL is the source site's web origin,
// used to absolutize site-relative hyperlinks.
func NewRewriter(webBaseURL string) *Rewriter {
	return &Rewriter{webBaseURL: strings.TrimRight(webBaseURL, "/")}
}

// Rewrite transforms one record body against its uploaded assets and returns
// the rewritten markup plus every hyperlink found in it. Placeholders whose
// asset never uploaded are left in place for manual review.
func (rw *Rewriter) Rewrite(body string, assets []models.Asset) (string, []string, error) {
	root, err := fragmentRoot(body)
	if err != nil {
		return "", nil, err
	}

	rw.replaceImages(root, assets)
	links := rw.fixLinks(root)
	rw.cleanMarkup(root)

	return innerHTML(root), links, nil
}

// replaceImages swaps the two placeholder shapes for attachment img tags:
// imagePlugin divs matched by normalized image URL, and data-instance-id divs
// matched by asset id.
func (rw *Rewriter) replaceImages(root *html.Node, assets []models.Asset) {
	walkNodes([]*html.Node{root}, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "div" {
			return
		}
		var match *models.Asset
		switch {
		case hasClass(n, "imagePlugin") && attrVal(n, "data-imageurl") != "":
			want := NormalizeRef(attrVal(n, "data-imageurl"))
			for i := range assets {
				if assets[i].Uploaded() && NormalizeRef(assets[i].SourceRef) == want {
					match = &assets[i]
					break
				}
			}
		case hasAttr(n, "data-instance-id"):
			id := attrVal(n, "data-instance-id")
			for i := range assets {
				if assets[i].Uploaded() && assets[i].ID == id {
					match = &assets[i]
					break
				}
			}
		}
		if match != nil {
			replaceNode(n, attachmentImg(match))
		}
	})
}

// attachmentImg builds the img tag the target editor renders for an uploaded
// attachment. Dimensions are omitted entirely when either side is missing or
// non-numeric.
func attachmentImg(asset *models.Asset) *html.Node {
	img := &html.Node{
		Type:     html.ElementNode,
		Data:     "img",
		DataAtom: atom.Img,
		Attr: []html.Attribute{
			{Key: "style", Val: "display: block; margin-left: auto; margin-right: auto;"},
			{Key: "src", Val: "/sys_attachment.do?sys_id=" + asset.TargetID},
			{Key: "alt", Val: ""},
		},
	}
	if w, h, ok := scaleDimensions(asset.Width, asset.Height); ok {
		img.Attr = append(img.Attr,
			html.Attribute{Key: "width", Val: strconv.Itoa(w)},
			html.Attribute{Key: "height", Val: strconv.Itoa(h)},
		)
	}
	img.Attr = append(img.Attr,
		html.Attribute{Key: "data-selector", Val: "true"},
		html.Attribute{Key: "data-original-title", Val: ""},
	)
	return img
}

// scaleDimensions applies the oversize rule: width over maxInlineWidth or
// height over maxInlineHeight shrinks the image to scaledWidth at the same
// aspect ratio; everything else keeps its rounded original size.
func scaleDimensions(width, height models.Dimension) (int, int, bool) {
	w, okW := width.Float()
	h, okH := height.Float()
	if !okW || !okH {
		return 0, 0, false
	}
	if w > maxInlineWidth || h > maxInlineHeight {
		scaled := 0.0
		if w > 0 {
			scaled = h * scaledWidth / w
		}
		return scaledWidth, int(math.Round(scaled)), true
	}
	return int(math.Round(w)), int(math.Round(h)), true
}

// fixLinks absolutizes site-relative hrefs against the source web origin and
// collects every href in document order.
func (rw *Rewriter) fixLinks(root *html.Node) []string {
	var links []string
	walkNodes([]*html.Node{root}, func(n *html.Node) {
		if !isElement(n, atom.A) || !hasAttr(n, "href") {
			return
		}
		href := attrVal(n, "href")
		if strings.HasPrefix(href, "/sites") {
			href = rw.webBaseURL + href
			setAttr(n, "href", href)
		}
		links = append(links, href)
	})
	return links
}

// cleanMarkup normalizes the fragment for the target editor: div class
// attributes go away, empty divs and paragraphs collapse to <br>, and all
// remaining text containers carry the standard font size exactly once.
func (rw *Rewriter) cleanMarkup(root *html.Node) {
	walkNodes([]*html.Node{root}, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.DataAtom {
		case atom.Div:
			if n == root {
				return
			}
			// Placeholders whose asset never uploaded keep their identifying
			// attributes so a later run can still reconcile them.
			if isPlaceholder(n) {
				return
			}
			removeAttr(n, "class")
			if isBlank(n) {
				replaceNode(n, brNode())
				return
			}
			appendFontSize(n)
		case atom.P:
			if isBlank(n) {
				replaceNode(n, brNode())
				return
			}
			wrapInFontSpan(n)
		case atom.Td:
			wrapInFontSpan(n)
		}
	})
}

// isPlaceholder reports whether the div is an unreplaced image placeholder.
func isPlaceholder(n *html.Node) bool {
	return hasClass(n, "imagePlugin") || hasAttr(n, "data-imageurl") || hasAttr(n, "data-instance-id")
}

func brNode() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "br", DataAtom: atom.Br}
}

// isBlank reports whether the element has no child elements and no text
// beyond whitespace and non-breaking spaces.
func isBlank(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return false
		}
	}
	text := strings.ReplaceAll(textContent(n), "\u00a0", "")
	return strings.TrimSpace(text) == ""
}

// appendFontSize adds the standard font size to the element's style once.
func appendFontSize(n *html.Node) {
	style := attrVal(n, "style")
	if strings.Contains(style, bodyFontSize) {
		return
	}
	if style == "" {
		setAttr(n, "style", bodyFontSize)
		return
	}
	setAttr(n, "style", strings.TrimRight(style, "; ")+"; "+bodyFontSize)
}

// wrapInFontSpan moves the element's content into a font-size span, unless
// one is already present somewhere beneath it.
func wrapInFontSpan(n *html.Node) {
	if n.FirstChild == nil || hasFontSpan(n) {
		return
	}
	span := &html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr:     []html.Attribute{{Key: "style", Val: bodyFontSize}},
	}
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
		span.AppendChild(c)
	}
	n.AppendChild(span)
}

func hasFontSpan(n *html.Node) bool {
	return findNode(n, func(c *html.Node) bool {
		return c != n && isElement(c, atom.Span) &&
			strings.Contains(attrVal(c, "style"), bodyFontSize)
	}) != nil
}
