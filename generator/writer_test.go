package generator

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing_post_refiner/logging"
	"marketing_post_refiner/trace"
)

// fixedLLM answers every call with the same content.
type fixedLLM struct{ content string }

func (f fixedLLM) Generate(context.Context, Request) (Response, error) {
	return Response{Content: f.content, Usage: Usage{TotalTokens: 3}}, nil
}

func lastStep(t *testing.T, rec *trace.Recorder) trace.Step {
	t.Helper()
	steps := rec.Snapshot().Steps
	require.NotEmpty(t, steps)
	return steps[len(steps)-1]
}

func TestWriteCountsCharactersNotBytes(t *testing.T) {
	post := strings.Repeat("\U0001F680", 100)
	tests := []struct {
		name     string
		max      int
		overflow bool
	}{
		{"within limit", 150, false},
		{"over limit", 99, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(fixedLLM{content: post}, logging.New(&buf, logging.LevelDebug))
			rec := trace.NewRecorder()

			d, err := w.Write(context.Background(), rec, WriteInput{Topic: "launch", MaxLength: tt.max, Attempt: 1})
			require.NoError(t, err)
			assert.Equal(t, post, d.Content)

			step := lastStep(t, rec)
			assert.Equal(t, 100, step.Annotations["length"])
			assert.Contains(t, step.Content, "(100 chars)")
			assert.Equal(t, tt.overflow, strings.Contains(buf.String(), "over the"), buf.String())
		})
	}
}

func TestOutlineLengthCountsCharacters(t *testing.T) {
	text := "\u2022 Go \u2728 \U0001F680"
	p := NewPlanner(fixedLLM{content: text}, nil)
	rec := trace.NewRecorder()

	out, err := p.Outline(context.Background(), rec, OutlineInput{Topic: "launch", MaxLength: 200})
	require.NoError(t, err)
	assert.Equal(t, text, out.Text)
	assert.Equal(t, 8, lastStep(t, rec).Annotations["outline_length"])
}
