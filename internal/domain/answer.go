package domain

// RetrievalResult is one ranked hit from the index. Ephemeral.
type RetrievalResult struct {
	Chunk Chunk
	Score float64
}

// Citation is a (chapter, document, page) reference attached to an answer.
type Citation struct {
	Chapter    string
	DocumentID string
	Page       int
}

// Answer is the synthesized response to a query. Ephemeral.
type Answer struct {
	Query     string
	Text      string
	Citations []Citation
	Sources   []RetrievalResult
	FollowUps []string

	// Degraded marks an answer assembled from raw chunks because synthesis
	// failed or timed out.
	Degraded bool
}
