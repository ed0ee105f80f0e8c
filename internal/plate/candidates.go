package plate

// CandidateSet keeps the best confidence seen for every normalized plate text.
type CandidateSet struct {
	best map[string]float64
}

func NewCandidateSet() *CandidateSet {
	return &CandidateSet{best: make(map[string]float64)}
}

func (s *CandidateSet) Add(text string, confidence float64) {
	if text == "" {
		return
	}
	if prev, ok := s.best[text]; !ok || confidence > prev {
		s.best[text] = confidence
	}
}

func (s *CandidateSet) Len() int {
	return len(s.best)
}

func (s *CandidateSet) Confidence(text string) (float64, bool) {
	c, ok := s.best[text]
	return c, ok
}

// Best returns the text with the highest confidence. Equal confidences are
// resolved by the lexically smaller text.
func (s *CandidateSet) Best() (text string, confidence float64, ok bool) {
	for t, c := range s.best {
		if !ok || c > confidence || (c == confidence && t < text) {
			text, confidence, ok = t, c, true
		}
	}
	return text, confidence, ok
}
