package sentiment

import "strings"

type signalAccumulator struct {
	sum   float64
	count int
}

// Aggregate reduces per-item payloads into a single keyword summary and
// returns it with the sample size. Primary scores are averaged over all
// items, the label is the most frequent item label, and signal scores are
// averaged over the items that mention them, so a strong emotion in a few
// items is not diluted by the rest of the sample. Signal means below
// minProbability are dropped.
func Aggregate(payloads []Payload, minProbability float64) (Payload, int) {
	if len(payloads) == 0 {
		return ZeroSummary(), 0
	}

	var positiveTotal, negativeTotal, neutralTotal, confidenceTotal float64
	labelCounts := make(map[string]int)
	labelOrder := make([]string, 0, 4)
	signalTotals := map[string]map[string]*signalAccumulator{
		LabelPositive: {},
		LabelNegative: {},
		LabelNeutral:  {},
	}

	for _, payload := range payloads {
		positiveTotal += payload.Primary.Positive
		negativeTotal += payload.Primary.Negative
		neutralTotal += payload.Primary.Neutral
		confidenceTotal += payload.Primary.Confidence

		label := strings.ToLower(strings.TrimSpace(payload.Primary.Label))
		if label != "" {
			if _, seen := labelCounts[label]; !seen {
				labelOrder = append(labelOrder, label)
			}
			labelCounts[label]++
		}

		for polarity, totals := range signalTotals {
			for name, score := range payload.Signals.Bucket(polarity) {
				accumulator, ok := totals[name]
				if !ok {
					accumulator = &signalAccumulator{}
					totals[name] = accumulator
				}
				accumulator.sum += score
				accumulator.count++
			}
		}
	}

	sampleSize := len(payloads)
	divisor := float64(sampleSize)
	summary := Payload{
		Primary: Primary{
			Positive:   positiveTotal / divisor,
			Negative:   negativeTotal / divisor,
			Neutral:    neutralTotal / divisor,
			Confidence: confidenceTotal / divisor,
		},
		Signals: emptySignals(),
	}
	summary.Primary.Label = dominantLabel(labelCounts, labelOrder, summary.Primary)

	for polarity, totals := range signalTotals {
		bucket := summary.Signals.Bucket(polarity)
		for name, accumulator := range totals {
			mean := accumulator.sum / float64(accumulator.count)
			if mean >= minProbability {
				bucket[name] = mean
			}
		}
	}

	return summary, sampleSize
}

// dominantLabel picks the most frequent item label, breaking ties by first
// occurrence in the sample. When no item carried a label it falls back to
// the highest primary mean, preferring positive, then neutral, then negative
// on exact ties.
func dominantLabel(counts map[string]int, order []string, primary Primary) string {
	if len(counts) > 0 {
		best := ""
		bestCount := 0
		for _, label := range order {
			if counts[label] > bestCount {
				best = label
				bestCount = counts[label]
			}
		}
		return best
	}

	best := LabelPositive
	bestScore := primary.Positive
	if primary.Neutral > bestScore {
		best = LabelNeutral
		bestScore = primary.Neutral
	}
	if primary.Negative > bestScore {
		best = LabelNegative
	}
	return best
}
