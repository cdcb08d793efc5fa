package detector

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/provenance-labs/provd/pkg/models"
)

// analyzeText scores machine-authorship signals over plain text:
// a perplexity proxy from word-frequency entropy, sentence-length
// burstiness, vocabulary richness, and trigram repetition.
func (d *Detector) analyzeText(text string) (*models.DetectionResult, error) {
	text = strings.TrimSpace(text)
	if len(text) < d.limits.MinTextLength {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrInputTooSmall, d.limits.MinTextLength)
	}

	words := tokenize(text)
	if len(words) < 10 {
		return nil, fmt.Errorf("%w: need at least 10 words", ErrInputTooSmall)
	}
	sentences := splitSentences(text)

	perplexity := perplexityProxy(words)
	burstiness := sentenceBurstiness(sentences)
	richness := vocabularyRichness(words)
	avgSentence := float64(len(words)) / float64(len(sentences))
	repetition := trigramRepetition(words)

	// Machine text tends toward low perplexity, uniform sentence lengths,
	// a narrow vocabulary, and repeated phrasing.
	perplexityScore := clamp01(1 - perplexity/600)
	burstinessScore := clamp01(1 - burstiness)
	richnessScore := clamp01(1 - richness*1.8)
	repetitionScore := clamp01(repetition * 4)

	prob := 0.30*perplexityScore +
		0.25*burstinessScore +
		0.25*richnessScore +
		0.20*repetitionScore

	signals := map[string]float64{
		"perplexity":          round3(perplexity),
		"burstiness":          round3(burstiness),
		"vocabulary_richness": round3(richness),
		"avg_sentence_length": round3(avgSentence),
		"repetition":          round3(repetition),
	}

	explanation := "statistical text profile consistent with human authorship"
	if prob >= 0.5 {
		explanation = "low-variance statistical text profile typical of machine generation"
	}

	return probabilityToResult(prob, signals, explanation), nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := raw[:0]
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

// perplexityProxy derives a pseudo-perplexity from the word-frequency
// distribution: exp of the Shannon entropy in nats.
func perplexityProxy(words []string) float64 {
	freq := make(map[string]int, len(words))
	for _, w := range words {
		freq[w]++
	}
	total := float64(len(words))
	entropy := 0.0
	for _, n := range freq {
		p := float64(n) / total
		entropy -= p * math.Log(p)
	}
	return math.Exp(entropy)
}

// sentenceBurstiness is the coefficient of variation of sentence lengths.
func sentenceBurstiness(sentences []string) float64 {
	if len(sentences) < 2 {
		return 0
	}
	lengths := make([]float64, len(sentences))
	mean := 0.0
	for i, s := range sentences {
		lengths[i] = float64(len(tokenize(s)))
		mean += lengths[i]
	}
	mean /= float64(len(lengths))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(len(lengths))
	return math.Sqrt(variance) / mean
}

func vocabularyRichness(words []string) float64 {
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	return float64(len(unique)) / float64(len(words))
}

// trigramRepetition is the fraction of word trigrams that occur more
// than once.
func trigramRepetition(words []string) float64 {
	if len(words) < 3 {
		return 0
	}
	seen := make(map[string]int)
	total := 0
	for i := 0; i+2 < len(words); i++ {
		key := words[i] + " " + words[i+1] + " " + words[i+2]
		seen[key]++
		total++
	}
	repeated := 0
	for _, n := range seen {
		if n > 1 {
			repeated += n
		}
	}
	return float64(repeated) / float64(total)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
