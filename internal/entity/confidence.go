package entity

// ConfidenceScores maps dotted field paths (e.g. "invoice.number") to a value
// in [0,1], plus an overall aggregate. A scores object belongs to exactly one
// extraction attempt; a re-extraction produces a new object, never mutates an
// existing one.
type ConfidenceScores struct {
	Overall float64            `json:"overall"`
	Fields  map[string]float64 `json:"fields"`
}

// Field returns the score for a dotted path, zero when absent.
func (c ConfidenceScores) Field(path string) float64 {
	return c.Fields[path]
}
