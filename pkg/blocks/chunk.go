package blocks

// Chunk is a retrieved passage produced by a search action. Tool outputs
// vary by provider, so metadata is a loose map; only Content is required.
type Chunk struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (c Chunk) metaString(key string) string {
	if c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata[key].(string)
	return s
}

// Title returns the metadata title, if any.
func (c Chunk) Title() string { return c.metaString("title") }

// URL returns the metadata url, if any.
func (c Chunk) URL() string { return c.metaString("url") }

// Thumbnail returns the metadata thumbnail, if any.
func (c Chunk) Thumbnail() string { return c.metaString("thumbnail") }

// Images returns the metadata image list, if any.
func (c Chunk) Images() []string {
	if c.Metadata == nil {
		return nil
	}
	switch v := c.Metadata["images"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// DedupeChunks removes URL duplicates preserving first-seen order, merging
// the content of later duplicates onto the earlier chunk. Chunks without a
// URL are kept as-is.
func DedupeChunks(in []Chunk) []Chunk {
	out := make([]Chunk, 0, len(in))
	index := make(map[string]int, len(in))
	for _, c := range in {
		u := c.URL()
		if u == "" {
			out = append(out, c)
			continue
		}
		key := NormalizeURL(u)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, c)
			continue
		}
		if c.Content != "" {
			out[i].Content += "\n\n" + c.Content
		}
	}
	return out
}

// SourceFromChunk projects a retrieval chunk into a citation.
func SourceFromChunk(c Chunk) Source {
	return Source{
		URL:       c.URL(),
		Title:     c.Title(),
		Snippet:   c.Content,
		Thumbnail: c.Thumbnail(),
		Images:    c.Images(),
		Author:    c.metaString("author"),
		Date:      c.metaString("date"),
	}
}

// SourcesFromChunks projects chunks into deduplicated citations.
func SourcesFromChunks(chunks []Chunk) []Source {
	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, SourceFromChunk(c))
	}
	return DedupeSources(sources)
}
