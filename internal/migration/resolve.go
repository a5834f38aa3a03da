package migration

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/knowledgeops/kbmigrate/internal/models"
)

// Resolver maps an asset's raw reference (a Graph drive URL, an absolute
// SharePoint URL, or a site-relative path) to a concrete (drive, file path)
// pair. Results are cached per reference string for the life of the run.
type Resolver struct {
	drives []models.Drive

	mu    sync.Mutex
	cache map[string]resolution
}

type resolution struct {
	driveID  string
	filePath string
	err      error
}

// NewResolver builds a Resolver over the run's cached drive list. Drive
// order matters: when several drives share a trailing URL segment, the first
// one in list order wins.
func NewResolver(drives []models.Drive) *Resolver {
	return &Resolver{drives: drives, cache: make(map[string]resolution)}
}

// splitRef breaks a reference into its drive name and the file path within
// that drive. The three supported shapes all carry a
// `.../sites/{site}/{drive}/{path}` suffix once percent-decoding is undone.
func splitRef(ref string) (driveName, filePath string, ok bool) {
	decoded := ref
	if d, err := url.PathUnescape(ref); err == nil {
		decoded = d
	}

	var tail string
	switch {
	case strings.Contains(decoded, "/drive/root:"):
		// Graph API shape: https://graph.../sites/{site}/drive/root:/sites/{site}/{drive}/{path}
		i := strings.Index(decoded, "root:")
		tail = decoded[i+len("root:"):]
	case strings.HasPrefix(decoded, "https://"), strings.HasPrefix(decoded, "http://"):
		u, err := url.Parse(decoded)
		if err != nil {
			return "", "", false
		}
		tail = u.Path
	case strings.HasPrefix(decoded, "/sites/"):
		tail = decoded
	default:
		return "", "", false
	}

	parts := strings.Split(strings.Trim(tail, "/"), "/")
	// Expect sites/{site-name}/{drive}/{path...}
	if len(parts) < 4 || parts[0] != "sites" {
		return "", "", false
	}
	return parts[2], strings.Join(parts[3:], "/"), true
}

// NormalizeRef reduces a reference of any supported shape to its
// `drive/file-path` normal form, percent-decoded. References that fit no
// shape come back decoded but otherwise untouched, so equality against other
// unparseable references still works.
func NormalizeRef(ref string) string {
	if drive, path, ok := splitRef(ref); ok {
		return drive + "/" + path
	}
	if d, err := url.PathUnescape(ref); err == nil {
		return d
	}
	return ref
}

// Resolve maps ref to a drive id and file path, or fails with a
// ResolutionError that the caller records on the asset.
func (r *Resolver) Resolve(ref string) (driveID, filePath string, err error) {
	r.mu.Lock()
	if res, ok := r.cache[ref]; ok {
		r.mu.Unlock()
		return res.driveID, res.filePath, res.err
	}
	r.mu.Unlock()

	driveID, filePath, err = r.resolve(ref)

	r.mu.Lock()
	r.cache[ref] = resolution{driveID: driveID, filePath: filePath, err: err}
	r.mu.Unlock()
	return driveID, filePath, err
}

func (r *Resolver) resolve(ref string) (string, string, error) {
	driveName, filePath, ok := splitRef(ref)
	if !ok {
		return "", "", &ResolutionError{Ref: ref, Reason: "unrecognized reference shape"}
	}

	encoded := url.PathEscape(driveName)

	// First pass: the trailing segment of each drive's browse URL, matched
	// against both the raw and the percent-encoded drive name.
	for _, d := range r.drives {
		seg := lastURLSegment(d.WebURL)
		if seg == "" {
			continue
		}
		if strings.EqualFold(driveName, seg) || strings.EqualFold(encoded, seg) {
			return d.ID, filePath, nil
		}
	}

	// Second pass: the drive's display name, exact then space-insensitive.
	for _, d := range r.drives {
		if strings.EqualFold(driveName, d.Name) ||
			strings.EqualFold(stripSpaces(driveName), stripSpaces(d.Name)) {
			return d.ID, filePath, nil
		}
	}

	names := make([]string, len(r.drives))
	for i, d := range r.drives {
		names[i] = d.Name
	}
	return "", "", &ResolutionError{
		Ref:    ref,
		Reason: fmt.Sprintf("no matching drive for %q (available: %s)", driveName, strings.Join(names, ", ")),
	}
}

func lastURLSegment(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}
