package ranker

import (
	"encoding/json"
	"math"
)

type scoredImageJSON struct {
	ImageID string   `json:"image_id"`
	Score   *float64 `json:"score"`
}

// MarshalJSON writes non-finite scores as null since JSON has no NaN.
func (s ScoredImage) MarshalJSON() ([]byte, error) {
	out := scoredImageJSON{ImageID: s.ImageID}
	if !math.IsNaN(s.Score) && !math.IsInf(s.Score, 0) {
		score := s.Score
		out.Score = &score
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a null score back as NaN.
func (s *ScoredImage) UnmarshalJSON(b []byte) error {
	var in scoredImageJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	s.ImageID = in.ImageID
	s.Score = math.NaN()
	if in.Score != nil {
		s.Score = *in.Score
	}
	return nil
}
