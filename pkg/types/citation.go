package types

// Citation is a display-ready reference to a retained chunk.
type Citation struct {
	Label           string     `json:"label"`               // "Big Book, p.164"
	Source          SourceType `json:"source"`              // Corpus of the cited chunk
	Reference       string     `json:"reference,omitempty"` // Secondary locator such as a chapter title
	Snippet         string     `json:"snippet"`
	Link            string     `json:"link,omitempty"`
	Score           float64    `json:"score"`
	ScorePercentage string     `json:"score_percentage"`
}
