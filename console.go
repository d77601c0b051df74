package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"marketing_post_refiner/generator"
	"marketing_post_refiner/store"
	"marketing_post_refiner/trace"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0A66C2"))
	postStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3A3F47")).
			Padding(0, 1)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2E8B57")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D98E04")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C0392B")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8F98"))
)

func statusStyle(s trace.Status) lipgloss.Style {
	switch s {
	case trace.StatusSuccess:
		return okStyle
	case trace.StatusWarning:
		return warnStyle
	case trace.StatusFailure:
		return errorStyle
	default:
		return dimStyle
	}
}

// printStep renders one live trace line.
func printStep(w io.Writer, s trace.Step) {
	fmt.Fprintf(w, "%s %-12s %-8s %s\n",
		dimStyle.Render(fmt.Sprintf("#%02d", s.Seq)),
		s.Stage,
		statusStyle(s.Status).Render(string(s.Status)),
		s.Content)
}

func printResult(w io.Writer, id string, res *generator.Result) {
	st := res.State
	verdict := okStyle.Render(string(st.Verdict()))
	if !st.Approved() {
		verdict = warnStyle.Render(string(st.Verdict()))
	}

	fmt.Fprintln(w, headerStyle.Render("Post"))
	fmt.Fprintln(w, postStyle.Render(st.Content()))
	fmt.Fprintf(w, "%s %s  score %.1f/%.1f  iterations %d\n",
		headerStyle.Render("Verdict"), verdict, st.FinalScore(), st.PassThreshold, st.Iterations())
	for _, a := range st.Summary() {
		mark := warnStyle.Render("✗")
		if a.Approved {
			mark = okStyle.Render("✓")
		}
		fmt.Fprintf(w, "  %s %d %-14s %.1f\n", mark, a.Iteration, a.Action, a.Score)
	}
	sum := res.Summary
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("run %s  steps %d  success %.0f%%  tokens %d  est. $%.4f  %s",
		id, sum.TotalSteps, sum.SuccessRate, sum.TotalTokens, sum.EstimatedCost, sum.Duration.Round(time.Millisecond))))
}

func printHistory(w io.Writer, list []store.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no runs yet"))
		return
	}
	for _, r := range list {
		verdict := okStyle.Render("approved")
		if !r.Approved {
			verdict = warnStyle.Render("reservations")
		}
		fmt.Fprintf(w, "%s  %s  %-12s %4.1f  %s\n",
			dimStyle.Render(r.CreatedAt.Local().Format("2006-01-02 15:04")),
			r.ID,
			verdict,
			r.FinalScore,
			headerStyle.Render(r.Topic))
		if r.Excerpt != "" {
			fmt.Fprintln(w, "    "+dimStyle.Render(generator.Excerpt(r.Excerpt, 100)))
		}
	}
}
