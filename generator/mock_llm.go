package generator

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// Responses depend only on the stage metadata and call order, so runs are
// reproducible. Review calls walk through Scores, repeating the last one.
type MockLLM struct {
	Scores []float64

	mu      sync.Mutex
	reviews int
}

const defaultMockScore = 8.5

// NewMockLLM returns a mock that reviews with the given score sequence.
func NewMockLLM(scores ...float64) *MockLLM {
	return &MockLLM{Scores: scores}
}

func (m *MockLLM) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	topic := req.Metadata[MetaTopic]
	if topic == "" {
		topic = "your industry"
	}

	var content string
	switch req.Metadata[MetaStage] {
	case StageOutline:
		content = mockOutline(topic)
	case StageReview:
		content = mockEvaluation(m.nextScore())
	default:
		content = mockPost(topic, req.Metadata[MetaRewrite] == "true")
	}

	// 粗略估算 token 数。
	prompt := len(strings.Fields(req.System+" "+req.Prompt)) * 2
	completion := len(strings.Fields(content)) * 2
	return Response{
		Content: content,
		Model:   "mock-model",
		Usage: Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

func (m *MockLLM) nextScore() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Scores) == 0 {
		return defaultMockScore
	}
	i := m.reviews
	if i >= len(m.Scores) {
		i = len(m.Scores) - 1
	}
	m.reviews++
	return m.Scores[i]
}

func mockOutline(topic string) string {
	return fmt.Sprintf(`**HOOK**: Open with a surprising question about %s.

**MAIN POINTS**:
1. Why %s matters right now
2. One concrete example from practice
3. What teams should try next

**CALL-TO-ACTION**: Ask readers how they approach %s.

**HASHTAGS**: #Innovation #Leadership #Growth`, topic, topic, topic)
}

func mockPost(topic string, rewrite bool) string {
	hook := "🚀 Have you noticed how fast " + topic + " is changing?"
	if rewrite {
		hook = "💡 Here is a sharper take on " + topic + "."
	}
	return hook + `

I've been exploring this topic, and here are my key takeaways:

✅ Innovation is about solving real problems, not chasing tools.
✅ Small experiments beat big plans.

What has your experience been? Share your thoughts below! 💬

#Innovation #Leadership #Growth`
}

func mockEvaluation(score float64) string {
	feedback := "Excellent post! Meets all criteria."
	if score < 8 {
		feedback = "The hook could be more engaging. Consider starting with a question or a surprising statistic."
	}
	return fmt.Sprintf(`{
  "score": %.1f,
  "brand_adherence": %.0f,
  "quality": %.0f,
  "tone_length": %.0f,
  "feedback": %q,
  "approved": %t
}`, score, score, score, score, feedback, score >= 8)
}
