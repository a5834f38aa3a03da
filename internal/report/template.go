package report

import "html/template"

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Knowledge Base Migration Preview</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; margin: 0; padding: 20px; color: #333; }
.container { max-width: 1200px; margin: 0 auto; }
h1 { color: #2c5282; border-bottom: 2px solid #eaeaea; padding-bottom: 10px; }
.stats { background-color: #f0f4f8; padding: 15px; border-radius: 5px; margin-bottom: 20px; border-left: 4px solid #2c5282; }
.toc { background-color: white; border: 1px solid #ddd; border-radius: 5px; padding: 15px; margin-bottom: 30px; font-size: 14px; }
.toc a { text-decoration: none; color: #2c5282; }
.toc a:hover { text-decoration: underline; }
.article { margin-bottom: 40px; border: 1px solid #ddd; border-radius: 5px; padding: 20px; background-color: #f9f9f9; }
.article-title { color: #2c5282; margin-top: 0; }
.metadata { background-color: #f5f5f5; padding: 10px; border-radius: 5px; margin-top: 10px; }
.article-content { background-color: white; padding: 15px; border-radius: 5px; border: 1px solid #eee; margin-top: 20px; }
.article-image { margin-bottom: 10px; padding: 10px; background-color: white; border: 1px solid #eee; border-radius: 5px; }
.article-image.needs-review { border-left: 4px solid #e53e3e; background-color: #fff5f5; }
.article-link { display: block; margin-bottom: 5px; }
.needs-review { color: #e53e3e; font-weight: bold; }
.error-message { background-color: #fed7d7; border-left: 4px solid #e53e3e; padding: 10px; margin-top: 10px; border-radius: 5px; }
.success-indicator { color: #38a169; margin-right: 5px; }
.warning-indicator { color: #dd6b20; margin-right: 5px; }
.error-indicator { color: #e53e3e; margin-right: 5px; }
table { border-collapse: collapse; width: 100%; }
td, th { border: 1px solid #ddd; padding: 8px; text-align: left; }
</style>
</head>
<body>
<div id="top" class="container">
<h1>Knowledge Base Migration Preview</h1>

<div class="stats">
<h2>Content Summary</h2>
<p><strong>Total Articles:</strong> {{.Stats.Articles}}</p>
<p><strong>Total Images:</strong> {{.Stats.Images}}</p>
<p><strong>Total Links:</strong> {{.Stats.Links}}</p>
<p><strong>Articles with Image Errors:</strong> <span class="warning-indicator">{{.Stats.WithImageErrors}}</span></p>
<p><strong>Needs Review:</strong> <span class="needs-review">{{.Stats.NeedsReview}}</span></p>
<p><small>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</small></p>
</div>

<div class="toc">
<h2>Table of Contents</h2>
<ul>
{{range .Articles}}<li><a href="#article-{{.ID}}">{{.Title}}{{if .HasImageErrors}} <span class="warning-indicator">&#9888;</span>{{end}}</a></li>
{{end}}</ul>
{{if .NeedsReview}}<h3>Needs Review</h3>
<ul>
{{range .NeedsReview}}<li><a href="#article-{{.ID}}"><span class="error-indicator">&#9888;</span> {{.Title}}</a></li>
{{end}}</ul>{{end}}
</div>

<h2>Migrated Articles</h2>
{{range .Articles}}
<div id="article-{{.ID}}" class="article">
<h2 class="article-title"><span class="{{if .HasImageErrors}}warning-indicator{{else}}success-indicator{{end}}">{{if .HasImageErrors}}&#9888;{{else}}&#10003;{{end}}</span> {{.Title}}{{if .TargetURL}} <a href="{{.TargetURL}}" target="_blank">(knowledge base link)</a>{{end}}</h2>
{{if .Description}}<p><strong>Description:</strong> {{.Description}}</p>{{end}}
<div class="metadata">
<p><strong>ID:</strong> {{.ID}}</p>
{{if .WebURL}}<p><strong>URL:</strong> <a href="{{.WebURL}}" target="_blank">{{.WebURL}}</a></p>{{end}}
</div>
{{if .Images}}
<h3>Images ({{len .Images}})</h3>
{{range .Images}}
<div class="article-image{{if or .DownloadError .UploadError}} needs-review{{end}}">
<p><strong>Image ID:</strong> {{.ID}}</p>
{{if .StagedPath}}<p><strong>Path:</strong> {{.StagedPath}}</p>{{end}}
{{if .TargetURL}}<p><strong>Attachment:</strong> <a href="{{.TargetURL}}" target="_blank">{{.TargetURL}}</a></p>{{end}}
{{if and .Width .Height}}<p><strong>Dimensions:</strong> {{.Width}}x{{.Height}}</p>{{end}}
{{if .DownloadError}}<p class="needs-review"><strong>Download Error:</strong> {{.DownloadError}}</p>{{end}}
{{if .UploadError}}<p class="needs-review"><strong>Upload Error:</strong> {{.UploadError}}</p>{{end}}
</div>
{{end}}
{{end}}
{{if .Links}}
<h3>Links ({{len .Links}})</h3>
{{range .Links}}<a class="article-link" href="{{.}}" target="_blank">{{.}}</a>
{{end}}
{{end}}
{{if .Content}}
<h3>Article Content</h3>
<div class="article-content">{{.Content}}</div>
{{end}}
<p><a href="#top">top</a></p>
</div>
{{end}}

{{if .NeedsReview}}
<h2 id="needs-review-section">Articles Requiring Review</h2>
{{range .NeedsReview}}
<div id="article-{{.ID}}" class="article">
<h2 class="article-title"><span class="error-indicator">&#9888;</span> {{.Title}}{{if .TargetURL}} <a href="{{.TargetURL}}" target="_blank">(knowledge base link)</a>{{end}}</h2>
{{if .Description}}<p><strong>Description:</strong> {{.Description}}</p>{{end}}
<div class="metadata">
<p><strong>ID:</strong> {{.ID}}</p>
{{if .WebURL}}<p><strong>URL:</strong> <a href="{{.WebURL}}" target="_blank">{{.WebURL}}</a></p>{{end}}
</div>
{{if .ProcessingError}}<div class="error-message"><strong>Error:</strong> {{.ProcessingError}}</div>{{end}}
{{if .Content}}
<h3>Article Content</h3>
<div class="article-content">{{.Content}}</div>
{{end}}
<p><a href="#top">top</a></p>
</div>
{{end}}
{{end}}

{{if .Ledger}}
<h2>Error Ledger</h2>
<table>
<tr><th>ID</th><th>Title</th><th>URL</th><th>Method</th><th>Error</th></tr>
{{range .Ledger}}<tr><td>{{.ID}}</td><td>{{.Title}}</td><td>{{.WebURL}}</td><td>{{.Outcome}}</td><td>{{.Error}}</td></tr>
{{end}}</table>
{{end}}

</div>
</body>
</html>
`))
