package models

// UnknownSource is the citation URL used when a source file carries no origin line.
const UnknownSource = "Unknown Source"

// SourceRecord is a corpus file parsed into its origin URL and body text.
type SourceRecord struct {
	SourceID  string
	SourceURL string
	Body      string
}

// Chunk is a contiguous word-bounded slice of a source body.
type Chunk struct {
	SourceID string
	Text     string
	Ordinal  int
}

// SearchResult pairs a matched source with its similarity score in (0, 1].
type SearchResult struct {
	SourceID string
	Score    float64
}

// SourceDocument is a scraped page before it is written to the corpus directory.
type SourceDocument struct {
	Name string
	URL  string
	Body string
}
