package research

import (
	"context"
	"fmt"
	"strings"
)

// Result is one search hit used as background for the outline stage.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Searcher finds background material for a topic.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Simulated returns canned, topic-shaped results without any network access.
type Simulated struct{}

func (Simulated) Search(ctx context.Context, query string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	slug := strings.ToLower(strings.Join(strings.Fields(query), "-"))
	return []Result{
		{
			Title:   fmt.Sprintf("Understanding %s: A Comprehensive Guide", query),
			Snippet: fmt.Sprintf("%s is reshaping the industry with new approaches. Recent developments show growing adoption across sectors.", query),
			URL:     "https://example.com/guide-" + slug,
		},
		{
			Title:   fmt.Sprintf("Top Trends in %s This Year", query),
			Snippet: fmt.Sprintf("The landscape of %s is evolving quickly, and key players are investing heavily in research and development.", query),
			URL:     "https://example.com/trends-" + slug,
		},
		{
			Title:   fmt.Sprintf("How %s Is Transforming Business Operations", query),
			Snippet: fmt.Sprintf("Companies use %s to streamline workflows and drive innovation; early adopters report measurable efficiency gains.", query),
			URL:     "https://example.com/business-" + slug,
		},
	}, nil
}

// Format renders results as the background block handed to the planner.
func Format(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("- %s\n  %s\n  Source: %s", r.Title, r.Snippet, r.URL))
	}
	return strings.Join(parts, "\n\n")
}

// Background searches for topic and formats the hits. A nil searcher yields
// an empty background.
func Background(ctx context.Context, s Searcher, topic string) (string, error) {
	if s == nil {
		return "", nil
	}
	results, err := s.Search(ctx, topic)
	if err != nil {
		return "", fmt.Errorf("research %q: %w", topic, err)
	}
	return Format(results), nil
}
