package blocks

import (
	"net/url"
	"strings"
)

// Source is a single citation. The dedupe key is the normalized URL;
// duplicates merge snippets by concatenation.
type Source struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Snippet   string   `json:"snippet,omitempty"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Images    []string `json:"images,omitempty"`
	Author    string   `json:"author,omitempty"`
	Date      string   `json:"date,omitempty"`
}

// NormalizeURL canonicalizes a URL for deduplication: lowercased scheme and
// host, default ports stripped, fragment dropped, trailing slash removed.
// Unparseable input is returned trimmed so it still works as a map key.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// DedupeSources removes URL duplicates while preserving first-seen order.
// A duplicate's snippet is appended to the original's; missing thumbnail,
// author, and date fields are backfilled, and image lists are unioned.
func DedupeSources(in []Source) []Source {
	out := make([]Source, 0, len(in))
	index := make(map[string]int, len(in))
	for _, s := range in {
		key := NormalizeURL(s.URL)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, s)
			continue
		}
		merged := &out[i]
		if s.Snippet != "" && !strings.Contains(merged.Snippet, s.Snippet) {
			if merged.Snippet != "" {
				merged.Snippet += "\n\n"
			}
			merged.Snippet += s.Snippet
		}
		if merged.Thumbnail == "" {
			merged.Thumbnail = s.Thumbnail
		}
		if merged.Author == "" {
			merged.Author = s.Author
		}
		if merged.Date == "" {
			merged.Date = s.Date
		}
		merged.Images = unionStrings(merged.Images, s.Images)
	}
	return out
}

// MergeSources merges extra into base under the same dedupe rule,
// preserving the insertion order of base.
func MergeSources(base, extra []Source) []Source {
	return DedupeSources(append(append([]Source{}, base...), extra...))
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			a = append(a, s)
			seen[s] = true
		}
	}
	return a
}
