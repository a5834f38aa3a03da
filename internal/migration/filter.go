package migration

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knowledgeops/kbmigrate/internal/platform"
)

// URLSegment returns the last non-empty path segment of a URL, lower-cased
// and trimmed. This is the comparison key the allow-list matches against.
func URLSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segs := strings.Split(u.Path, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segs[i]); s != "" {
			return strings.ToLower(s)
		}
	}
	return ""
}

// Partition splits discovered pages into the set to migrate and the set to
// exclude. A page is kept iff the last segment of its web URL matches one of
// keepSegments (case-insensitive, trimmed). Every input page lands in exactly
// one of the two results.
func Partition(pages []platform.ListItem, keepSegments []string) (inScope, excluded []platform.ListItem) {
	keep := make(map[string]bool, len(keepSegments))
	for _, s := range keepSegments {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			keep[s] = true
		}
	}
	for _, p := range pages {
		if keep[URLSegment(p.WebURL)] {
			inScope = append(inScope, p)
		} else {
			excluded = append(excluded, p)
		}
	}
	return inScope, excluded
}

// ReadSegmentsFile loads the allow-list of URL segments, one per line,
// skipping blanks.
func ReadSegmentsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading URL segments file: %w", err)
	}
	defer f.Close()

	var segments []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			segments = append(segments, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading URL segments file: %w", err)
	}
	return segments, nil
}
