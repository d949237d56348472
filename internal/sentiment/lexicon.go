package sentiment

import (
	"context"
	"strings"
	"unicode"
)

// LexiconEngineName identifies the embedded lexicon engine.
const LexiconEngineName = "lexicon"

// LexiconEngine scores text against embedded term lists. It runs in-process
// with no model dependency, which makes it the default engine for local
// setups and for tests; deployments with an inference sidecar register the
// remote engine alongside it.
type LexiconEngine struct {
	minProbability float64
}

// NewLexiconEngine creates a lexicon engine that drops signal scores below
// minProbability.
func NewLexiconEngine(minProbability float64) *LexiconEngine {
	if minProbability < 0 {
		minProbability = 0
	}
	return &LexiconEngine{minProbability: minProbability}
}

// Name implements Engine.
func (e *LexiconEngine) Name() string {
	return LexiconEngineName
}

// AnalyzeMany implements Engine. It never fails except on context
// cancellation.
func (e *LexiconEngine) AnalyzeMany(ctx context.Context, texts []string) ([]Payload, error) {
	payloads := make([]Payload, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, AsInferenceError(LexiconEngineName, err)
		}
		payloads = append(payloads, e.analyze(text))
	}
	return payloads, nil
}

func (e *LexiconEngine) analyze(text string) Payload {
	tokens := tokenizeWords(text)
	if len(tokens) == 0 {
		return EmptyPayload()
	}

	var positiveHits, negativeHits float64
	emotionHits := make(map[string]int)
	for _, token := range tokens {
		if positiveTerms[token] {
			positiveHits++
		}
		if negativeTerms[token] {
			negativeHits++
		}
		if emotion, ok := emotionTerms[token]; ok {
			emotionHits[emotion]++
		}
	}

	payload := Payload{Signals: emptySignals()}

	// The +1 smoothing keeps a neutral remainder even for text made
	// entirely of polarity terms.
	polarityHits := positiveHits + negativeHits
	payload.Primary.Positive = positiveHits / (polarityHits + 1)
	payload.Primary.Negative = negativeHits / (polarityHits + 1)
	payload.Primary.Neutral = 1 - payload.Primary.Positive - payload.Primary.Negative
	payload.Primary.Label, payload.Primary.Confidence = argmaxPrimary(payload.Primary)

	totalTokens := float64(len(tokens))
	for emotion, hits := range emotionHits {
		score := float64(hits) / totalTokens
		if score > 1 {
			score = 1
		}
		if score < e.minProbability {
			continue
		}
		if bucket := payload.Signals.Bucket(SignalPolarity[emotion]); bucket != nil {
			bucket[emotion] = score
		}
	}
	return payload
}

// argmaxPrimary returns the winning class and its probability, preferring
// positive over negative over neutral on exact ties.
func argmaxPrimary(primary Primary) (string, float64) {
	label := LabelPositive
	score := primary.Positive
	if primary.Negative > score {
		label = LabelNegative
		score = primary.Negative
	}
	if primary.Neutral > score {
		label = LabelNeutral
		score = primary.Neutral
	}
	return label, score
}

// tokenizeWords lowercases the text and splits it into word tokens, keeping
// in-word apostrophes so contractions stay single tokens.
func tokenizeWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.Trim(field, "'")
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

var positiveTerms = map[string]bool{
	"amazing": true, "awesome": true, "beautiful": true, "best": true,
	"brilliant": true, "bullish": true, "celebrate": true, "delighted": true,
	"excellent": true, "fantastic": true, "gain": true, "gains": true,
	"glad": true, "good": true, "great": true, "happy": true,
	"impressive": true, "improved": true, "improvement": true, "joy": true,
	"love": true, "outstanding": true, "positive": true, "promising": true,
	"reliable": true, "safe": true, "solid": true, "strong": true,
	"success": true, "successful": true, "thrilled": true, "trust": true,
	"win": true, "winning": true, "wonderful": true,
}

var negativeTerms = map[string]bool{
	"afraid": true, "angry": true, "awful": true, "bad": true,
	"bearish": true, "broken": true, "bug": true, "crash": true,
	"disappointed": true, "disappointing": true, "drop": true, "fail": true,
	"failing": true, "failure": true, "fear": true, "fraud": true,
	"furious": true, "hate": true, "horrible": true, "loss": true,
	"losses": true, "negative": true, "outraged": true, "panic": true,
	"poor": true, "risky": true, "sad": true, "scam": true,
	"scared": true, "terrible": true, "ugly": true, "weak": true,
	"worried": true, "worry": true, "worst": true,
}

var emotionTerms = map[string]string{
	"afraid":     "fear",
	"anxious":    "fear",
	"dread":      "fear",
	"fear":       "fear",
	"panic":      "fear",
	"scared":     "fear",
	"terrified":  "fear",
	"worried":    "fear",
	"crave":      "desire",
	"desire":     "desire",
	"eager":      "desire",
	"hope":       "desire",
	"longing":    "desire",
	"want":       "desire",
	"wish":       "desire",
	"greed":      "greed",
	"greedy":     "greed",
	"hoard":      "greed",
	"jackpot":    "greed",
	"windfall":   "greed",
	"celebrate":  "joy",
	"cheerful":   "joy",
	"delighted":  "joy",
	"glad":       "joy",
	"happy":      "joy",
	"joy":        "joy",
	"thrilled":   "joy",
	"anger":      "anger",
	"angry":      "anger",
	"annoyed":    "anger",
	"furious":    "anger",
	"irritated":  "anger",
	"outraged":   "anger",
	"rage":       "anger",
	"credible":   "trust",
	"dependable": "trust",
	"honest":     "trust",
	"proven":     "trust",
	"reliable":   "trust",
	"trust":      "trust",
	"anticipate": "anticipation",
	"await":      "anticipation",
	"expect":     "anticipation",
	"imminent":   "anticipation",
	"soon":       "anticipation",
	"upcoming":   "anticipation",
	"shocking":   "surprise",
	"stunned":    "surprise",
	"sudden":     "surprise",
	"surprise":   "surprise",
	"surprised":  "surprise",
	"unexpected": "surprise",
}
