package repetition_guard

import (
	"math"
	"strings"
	"unicode"
)

// SimilarityFunc возвращает похожесть двух текстов в диапазоне [0, 1].
type SimilarityFunc func(a, b string) float64

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// CosineSimilarity - косинус между векторами частот слов.
func CosineSimilarity(a, b string) float64 {
	left := wordCounts(a)
	right := wordCounts(b)
	if len(left) == 0 && len(right) == 0 {
		return 1
	}
	if len(left) == 0 || len(right) == 0 {
		return 0
	}

	var dot, normLeft, normRight float64
	for word, count := range left {
		normLeft += count * count
		dot += count * right[word]
	}
	for _, count := range right {
		normRight += count * count
	}
	return dot / (math.Sqrt(normLeft) * math.Sqrt(normRight))
}

func wordCounts(text string) map[string]float64 {
	counts := make(map[string]float64)
	for _, word := range tokenize(text) {
		counts[word]++
	}
	return counts
}

// BigramJaccard - коэффициент Жаккара по символьным биграммам нормализованного текста.
func BigramJaccard(a, b string) float64 {
	left := bigrams(a)
	right := bigrams(b)
	if len(left) == 0 && len(right) == 0 {
		return 1
	}

	intersection := 0
	for gram := range left {
		if right[gram] {
			intersection++
		}
	}
	union := len(left) + len(right) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func bigrams(text string) map[string]bool {
	runes := []rune(strings.Join(tokenize(text), " "))
	grams := make(map[string]bool)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])] = true
	}
	return grams
}
