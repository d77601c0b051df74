package generator

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// FallbackFeedback is the feedback of a review that could not be decoded.
const FallbackFeedback = "Could not parse evaluation properly. Consider regenerating."

const (
	neutralScore = 7.0
	minScore     = 0.0
	maxScore     = 10.0
)

// FallbackReview is the neutral result used for undecodable evaluations.
func FallbackReview() ReviewResult {
	return ReviewResult{
		Score:              neutralScore,
		GuidelineAdherence: neutralScore,
		Quality:            neutralScore,
		ToneLength:         neutralScore,
		Feedback:           FallbackFeedback,
	}
}

// ParseEvaluation decodes the JSON envelope between the first '{' and the
// last '}' of raw. It never fails: anything it cannot decode, including a
// non-numeric or out-of-range score, yields FallbackReview. Approved is
// left false; the Reviewer decides it against its threshold.
func ParseEvaluation(raw string) ReviewResult {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return FallbackReview()
	}
	body := raw[start : end+1]
	if !gjson.Valid(body) {
		return FallbackReview()
	}
	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return FallbackReview()
	}

	subs := [3]float64{}
	for i, key := range []string{"brand_adherence", "quality", "tone_length"} {
		v, ok := scoreField(doc, key)
		if !ok {
			return FallbackReview()
		}
		subs[i] = v
	}

	score := (subs[0] + subs[1] + subs[2]) / 3
	if doc.Get("score").Exists() {
		v, ok := scoreField(doc, "score")
		if !ok {
			return FallbackReview()
		}
		score = v
	}

	return ReviewResult{
		Score:              score,
		GuidelineAdherence: subs[0],
		Quality:            subs[1],
		ToneLength:         subs[2],
		Feedback:           strings.TrimSpace(doc.Get("feedback").String()),
		Parsed:             true,
	}
}

// scoreField reads a score in [0, 10]. Missing fields default to neutral.
func scoreField(doc gjson.Result, key string) (float64, bool) {
	v := doc.Get(key)
	if !v.Exists() {
		return neutralScore, true
	}
	if v.Type != gjson.Number {
		return 0, false
	}
	f := v.Float()
	if f < minScore || f > maxScore {
		return 0, false
	}
	return f, true
}

// judge applies threshold. Approved results carry no feedback; rejected
// ones always carry some.
func judge(r ReviewResult, threshold float64) ReviewResult {
	r.Approved = r.Parsed && r.Score >= threshold
	switch {
	case r.Approved:
		r.Feedback = ""
	case r.Feedback == "":
		r.Feedback = fmt.Sprintf("Score %.1f is below the %.1f threshold. Sharpen the opening hook and make the call-to-action more specific.", r.Score, threshold)
	}
	return r
}
