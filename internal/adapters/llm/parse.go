package llm

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"reviewpulse/internal/domain"
)

var ErrUnparseable = errors.New("llm: classifier output is not a JSON object")

const (
	maxKeywords   = 8
	maxCategories = 5
)

var sentimentAliases = map[string]domain.Sentiment{
	"positive": domain.SentimentPositive,
	"pos":      domain.SentimentPositive,
	"neutral":  domain.SentimentNeutral,
	"mixed":    domain.SentimentNeutral,
	"negative": domain.SentimentNegative,
	"neg":      domain.SentimentNegative,
}

// ParseAnalysis reads classifier output. Models sometimes wrap the object in
// prose or a code fence, so the outermost {...} is taken. A missing or unknown
// sentiment rejects the result; everything else is tidied.
func ParseAnalysis(content string) (domain.AnalysisResult, error) {
	s := extractObject(content)
	if s == "" || !gjson.Valid(s) {
		return domain.AnalysisResult{}, ErrUnparseable
	}
	doc := gjson.Parse(s)

	sent, ok := sentimentAliases[strings.ToLower(strings.TrimSpace(doc.Get("sentiment").String()))]
	if !ok {
		return domain.AnalysisResult{}, errors.New("llm: missing or unknown sentiment")
	}

	score := doc.Get("sentiment_score").Float()
	if !doc.Get("sentiment_score").Exists() {
		score = defaultScore(sent)
	}
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}

	res := domain.AnalysisResult{
		Sentiment:      sent,
		SentimentScore: score,
		Keywords:       terms(doc.Get("keywords"), maxKeywords),
		Categories:     terms(doc.Get("categories"), maxCategories),
		Language:       strings.ToLower(strings.TrimSpace(doc.Get("language").String())),
		IsSpam:         doc.Get("is_spam").Bool(),
	}
	if res.Language == "" {
		res.Language = "unknown"
	}
	if r := strings.TrimSpace(doc.Get("detected_response").String()); r != "" && doc.Get("detected_response").Type == gjson.String {
		res.DetectedResponse = &r
	}
	return res, nil
}

func defaultScore(s domain.Sentiment) float64 {
	switch s {
	case domain.SentimentPositive:
		return 0.5
	case domain.SentimentNegative:
		return -0.5
	}
	return 0
}

func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// terms lowercases, trims and dedupes a string array, keeping order.
func terms(arr gjson.Result, limit int) []string {
	out := []string{}
	seen := map[string]struct{}{}
	arr.ForEach(func(_, v gjson.Result) bool {
		t := strings.ToLower(strings.TrimSpace(v.String()))
		if t == "" {
			return true
		}
		if _, dup := seen[t]; dup {
			return true
		}
		seen[t] = struct{}{}
		out = append(out, t)
		return len(out) < limit
	})
	return out
}
