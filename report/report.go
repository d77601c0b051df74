package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"marketing_post_refiner/generator"
	"marketing_post_refiner/logging"
)

// Run is what a report is rendered from.
type Run struct {
	ID      string
	Request generator.GenerationRequest
	Result  *generator.Result
}

// Paths are the files written by Publish.
type Paths struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// Publisher renders runs to Markdown and HTML files under a directory.
type Publisher struct {
	dir    string
	md     goldmark.Markdown
	logger *logging.Logger
}

func New(dir string, logger *logging.Logger) *Publisher {
	return &Publisher{
		dir:    dir,
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger: logger.Named("report"),
	}
}

// Publish writes <dir>/<id>.md and <dir>/<id>.html.
func (p *Publisher) Publish(ctx context.Context, run Run) (Paths, error) {
	if err := ctx.Err(); err != nil {
		return Paths{}, err
	}
	if run.ID == "" || run.Result == nil {
		return Paths{}, errors.New("report: run id and result are required")
	}
	md := Markdown(run)
	page, err := p.HTML(run)
	if err != nil {
		return Paths{}, err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("report dir: %w", err)
	}
	paths := Paths{
		Markdown: filepath.Join(p.dir, run.ID+".md"),
		HTML:     filepath.Join(p.dir, run.ID+".html"),
	}
	if err := os.WriteFile(paths.Markdown, []byte(md), 0o644); err != nil {
		return Paths{}, err
	}
	if err := os.WriteFile(paths.HTML, []byte(page), 0o644); err != nil {
		return Paths{}, err
	}
	p.logger.Infof("report written: %s", paths.HTML)
	return paths, nil
}

// HTML renders the run as a standalone page.
func (p *Publisher) HTML(run Run) (string, error) {
	body, err := p.mdToHTML(Markdown(run))
	if err != nil {
		return "", err
	}
	title := html.EscapeString(titleOf(run))
	return fmt.Sprintf(pageTemplate, title, body), nil
}

func (p *Publisher) mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := p.md.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func titleOf(run Run) string {
	return "Post report: " + run.Request.Topic
}

// Markdown renders the post, outline, attempts and trace of a run.
func Markdown(run Run) string {
	st := run.Result.State
	sum := run.Result.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", titleOf(run))
	fmt.Fprintf(&b, "- Run: `%s`\n", run.ID)
	fmt.Fprintf(&b, "- Trace: `%s`\n", run.Result.Trace.ID)
	fmt.Fprintf(&b, "- Tone: %s, max length %d\n", run.Request.Tone, run.Request.MaxLength)
	if run.Request.StyleGuideID != "" {
		fmt.Fprintf(&b, "- Style guide: %s\n", run.Request.StyleGuideID)
	}
	fmt.Fprintf(&b, "- Verdict: **%s** (score %.1f, threshold %.1f)\n\n", st.Verdict(), st.FinalScore(), st.PassThreshold)

	b.WriteString("## Post\n\n")
	for _, line := range strings.Split(st.Content(), "\n") {
		b.WriteString("> " + line + "\n")
	}
	b.WriteString("\n## Outline\n\n")
	b.WriteString(st.Outline.Text)
	b.WriteString("\n\n## Attempts\n\n")
	b.WriteString("| # | Action | Score | Adherence | Quality | Tone/length | Approved |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, list := range [][]generator.Attempt{st.Attempts, st.Revisions} {
		for _, a := range list {
			fmt.Fprintf(&b, "| %d | %s | %.1f | %.0f | %.0f | %.0f | %t |\n",
				a.Iteration, a.Kind, a.Review.Score, a.Review.GuidelineAdherence, a.Review.Quality, a.Review.ToneLength, a.Review.Approved)
		}
	}

	b.WriteString("\n## Trace\n\n")
	b.WriteString("| Seq | Stage | Action | Status | Tokens | Detail |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, s := range run.Result.Trace.Steps {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %d | %s |\n", s.Seq, s.Stage, s.Action, s.Status, s.Tokens, cell(s.Content))
	}

	b.WriteString("\n## Summary\n\n")
	fmt.Fprintf(&b, "- Steps: %d\n", sum.TotalSteps)
	fmt.Fprintf(&b, "- Success rate: %.1f%%\n", sum.SuccessRate)
	fmt.Fprintf(&b, "- Tokens: %d\n", sum.TotalTokens)
	fmt.Fprintf(&b, "- Estimated cost: $%.4f\n", sum.EstimatedCost)
	fmt.Fprintf(&b, "- Duration: %s\n", sum.Duration)
	return b.String()
}

// cell keeps free text inside one table cell.
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 860px; margin: 2em auto; line-height: 1.5; color: #222; }
blockquote { border-left: 4px solid #0a66c2; margin: 0; padding: 0.2em 1em; background: #f3f6f8; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ddd; padding: 4px 8px; font-size: 14px; }
</style>
</head>
<body>
%s
</body>
</html>
`
