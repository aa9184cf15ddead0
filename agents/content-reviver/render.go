package contentreviver

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/yash21saraf/revival.ai/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginTop(1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	staleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	metricStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 2).Border(lipgloss.RoundedBorder())
)

// TerminalWidth returns the stdout width with a fallback of 80.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	if width > 10 {
		return width - 4
	}
	return width
}

// ConsoleNarrator prints the thinking narrative as it grows. Updates carry
// the full narrative so far; only the new suffix is written.
type ConsoleNarrator struct {
	w       io.Writer
	printed string
}

func NewConsoleNarrator(w io.Writer) *ConsoleNarrator {
	return &ConsoleNarrator{w: w}
}

func (n *ConsoleNarrator) Update(thinking string) {
	if strings.HasPrefix(thinking, n.printed) {
		fmt.Fprint(n.w, thinking[len(n.printed):])
	} else {
		// Narrative was rewritten rather than extended.
		fmt.Fprint(n.w, "\n"+thinking)
	}
	n.printed = thinking
}

// Done ends the narrative line, if anything was printed.
func (n *ConsoleNarrator) Done() {
	if n.printed != "" {
		fmt.Fprintln(n.w)
	}
	n.printed = ""
}

// RenderReport writes a human-readable report. plain disables terminal
// styling for the script outline, for piped output.
func RenderReport(w io.Writer, report *models.Report, width int, plain bool) error {
	s := report.Strategy
	if s == nil {
		return fmt.Errorf("report has no strategy")
	}

	var b strings.Builder

	md := s.OriginalVideoMetadata
	if md == nil {
		md = models.DefaultVideoMetadata()
	}
	b.WriteString(titleStyle.Render("Revival report: "+md.Title) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Published %s · %d views · %s", md.PublishDate, md.CurrentViews, report.VideoURL)) + "\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		metricStyle.Render(fmt.Sprintf("Predicted views\n%.0f", s.PredictedViews)),
		metricStyle.Render(fmt.Sprintf("Engagement\n%.0f%%", s.PredictedEngagement)),
		metricStyle.Render(fmt.Sprintf("Max impact\n%d/10", s.MaxImpact())),
	) + "\n")

	if len(s.OutdatedItems) > 0 {
		b.WriteString(headingStyle.Render("What went stale") + "\n")
		for _, item := range s.OutdatedItems {
			fmt.Fprintf(&b, "• %s: %s → %s (impact %d/10)\n", item.Subject, item.OldTool, item.NewTool, item.ImpactScore)
			if item.Reason != "" {
				b.WriteString("  " + dimStyle.Render(item.Reason) + "\n")
			}
			for _, seg := range s.AffectedSegments(item) {
				fmt.Fprintf(&b, "  ↳ %s–%s %s\n", seg.StartTime, seg.EndTime, seg.Summary)
			}
		}
	}

	if len(s.Segments) > 0 {
		b.WriteString(headingStyle.Render("Timeline") + "\n")
		for _, seg := range s.Segments {
			line := fmt.Sprintf("[%s–%s] %s", seg.StartTime, seg.EndTime, seg.Summary)
			if seg.NeedsUpdate != nil && *seg.NeedsUpdate {
				line += " " + staleStyle.Render("needs update")
			}
			b.WriteString(line + "\n")
			if report.VideoID != "" {
				b.WriteString("  " + dimStyle.Render(seg.DeepLink(report.VideoID)) + "\n")
			}
		}
	}

	if plan := s.RevivalPlan; plan != nil {
		b.WriteString(headingStyle.Render("Revival plan: "+plan.Title) + "\n")
		if plan.Description != "" {
			b.WriteString(plan.Description + "\n")
		}
		if plan.ScriptOutline != "" {
			outline, err := renderMarkdown(plan.ScriptOutline, width, plain)
			if err != nil {
				return err
			}
			b.WriteString(outline)
		}
	}

	if report.ID != "" {
		b.WriteString("\n" + dimStyle.Render("Report "+report.ID) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderMarkdown(content string, width int, plain bool) (string, error) {
	style := glamour.WithAutoStyle()
	if plain {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("creating terminal renderer: %w", err)
	}

	rendered, err := r.Render(content)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return rendered, nil
}
