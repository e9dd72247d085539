package index

// Posting records how often a term occurs in one provision, split by field.
type Posting struct {
	DocID     int64
	TitleFreq int
	BodyFreq  int
	Positions []int
}

// Frequency is the total number of occurrences across all fields.
func (p Posting) Frequency() int {
	return p.TitleFreq + p.BodyFreq
}

type PostingList []Posting

// DocStats summarises a single indexed provision.
type DocStats struct {
	DocID  int64
	DocLen int
	Terms  map[string]Posting
}
