// Package sentiment defines the analysis payload model, the inference engine
// contract with its implementations, and the keyword-level aggregation.
package sentiment

const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// DefaultMinProbability drops signal scores below this threshold to keep
// payloads sparse.
const DefaultMinProbability = 0.05

// EmotionLabels is the classification vocabulary for signal buckets.
var EmotionLabels = []string{
	"fear",
	"desire",
	"greed",
	"joy",
	"anger",
	"trust",
	"anticipation",
	"surprise",
}

// SignalPolarity assigns each emotion label to a polarity bucket.
var SignalPolarity = map[string]string{
	"fear":         LabelNegative,
	"anger":        LabelNegative,
	"greed":        LabelNegative,
	"surprise":     LabelNeutral,
	"desire":       LabelPositive,
	"joy":          LabelPositive,
	"trust":        LabelPositive,
	"anticipation": LabelPositive,
}

// Primary carries the three class probabilities, the argmax label, and the
// winning probability as confidence.
type Primary struct {
	Positive   float64 `json:"positive"`
	Negative   float64 `json:"negative"`
	Neutral    float64 `json:"neutral"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Signals holds per-polarity emotion scores. Labels under the configured
// minimum probability are dropped, not zeroed.
type Signals struct {
	Positive map[string]float64 `json:"positive"`
	Negative map[string]float64 `json:"negative"`
	Neutral  map[string]float64 `json:"neutral"`
}

// Payload is one item's analysis result. The same shape serves as the
// aggregated keyword summary.
type Payload struct {
	Primary Primary `json:"primary"`
	Signals Signals `json:"signals"`
}

// EmptyPayload is the canonical result for blank input: fully neutral with
// empty signal buckets.
func EmptyPayload() Payload {
	return Payload{
		Primary: Primary{
			Neutral:    1.0,
			Label:      LabelNeutral,
			Confidence: 1.0,
		},
		Signals: emptySignals(),
	}
}

// ZeroSummary is the canonical aggregate over zero items.
func ZeroSummary() Payload {
	return Payload{
		Primary: Primary{
			Label: LabelNeutral,
		},
		Signals: emptySignals(),
	}
}

// Bucket returns the signal map for a polarity label, nil for unknown ones.
func (s *Signals) Bucket(polarity string) map[string]float64 {
	if s == nil {
		return nil
	}
	switch polarity {
	case LabelPositive:
		return s.Positive
	case LabelNegative:
		return s.Negative
	case LabelNeutral:
		return s.Neutral
	default:
		return nil
	}
}

// Normalize replaces nil buckets with empty maps so payloads always marshal
// with all three buckets present.
func (s *Signals) Normalize() {
	if s == nil {
		return
	}
	if s.Positive == nil {
		s.Positive = map[string]float64{}
	}
	if s.Negative == nil {
		s.Negative = map[string]float64{}
	}
	if s.Neutral == nil {
		s.Neutral = map[string]float64{}
	}
}

func emptySignals() Signals {
	return Signals{
		Positive: map[string]float64{},
		Negative: map[string]float64{},
		Neutral:  map[string]float64{},
	}
}
