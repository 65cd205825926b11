package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/profilestate/internal/app/converge"
	"github.com/alexisbeaulieu97/profilestate/internal/state"
)

const (
	idWidth      = 44
	statusWidth  = 16
	commentWidth = 60
	ruleWidth    = 80
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	changedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failureStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	secondaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Options controls table rendering.
type Options struct {
	// Styled enables colours; callers usually pass IsTerminal(w).
	Styled bool
	// Verbose prints full comments (including generated content) and errors
	// below the table.
	Verbose bool
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}

// Table writes one row per outcome followed by the summary line.
func Table(w io.Writer, summary *converge.Summary, opts Options) {
	title := "Convergence results"
	if summary != nil && summary.Name != "" {
		title = fmt.Sprintf("Convergence results: %s", summary.Name)
	}
	if summary != nil && summary.DryRun {
		title += " (dry run)"
	}

	fmt.Fprintln(w, paint(opts, titleStyle, title))
	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
	fmt.Fprintf(w, "%-*s %-*s %s\n", idWidth, "Identifier", statusWidth, "Status", "Comment")
	fmt.Fprintln(w, strings.Repeat("-", ruleWidth))

	if summary != nil {
		for _, o := range summary.Outcomes {
			status := o.Status()
			label := fmt.Sprintf("%s %s", statusSymbol(status), status)
			fmt.Fprintf(w, "%-*s %s %s\n",
				idWidth, truncate(o.ID, idWidth),
				paint(opts, statusStyle(status), fmt.Sprintf("%-*s", statusWidth, label)),
				truncate(firstLine(outcomeComment(o)), commentWidth),
			)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
	fmt.Fprintln(w, SummaryLine(summary))

	if opts.Verbose && summary != nil {
		writeDetails(w, summary, opts)
	}
}

func writeDetails(w io.Writer, summary *converge.Summary, opts Options) {
	for _, o := range summary.Outcomes {
		comment := outcomeComment(o)
		if !strings.Contains(comment, "\n") && o.Err == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", paint(opts, secondaryStyle, fmt.Sprintf("--- %s ---", o.ID)))
		fmt.Fprintln(w, comment)
	}
}

// SummaryLine renders the outcome counters on one line.
func SummaryLine(summary *converge.Summary) string {
	c := summary.Counts()
	line := fmt.Sprintf("%d profiles: %d unchanged, %d changed, %d would change, %d failed, %d errored",
		c.Total(), c.Unchanged, c.Changed, c.WouldChange, c.Failed, c.Errored)
	if d := summary.Duration(); d > 0 {
		line += fmt.Sprintf(" in %s", d.Round(time.Millisecond))
	}
	return line
}

// Document is the JSON output of a run. Reports keep their fixed shape;
// profiles whose reconciliation errored produce no report and are listed
// under Errors instead, so every declared profile appears exactly once.
type Document struct {
	Reports []state.Report `json:"reports"`
	Errors  []ErrorEntry   `json:"errors"`
}

// ErrorEntry describes a profile that could not be reconciled.
type ErrorEntry struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error"`
}

// NewDocument splits a summary's outcomes into reports and errors, keeping
// manifest order within each list.
func NewDocument(summary *converge.Summary) Document {
	doc := Document{Reports: []state.Report{}, Errors: []ErrorEntry{}}
	if summary == nil {
		return doc
	}
	doc.Reports = append(doc.Reports, summary.Reports()...)
	for _, o := range summary.Outcomes {
		if o.Report == nil && o.Err != nil {
			doc.Errors = append(doc.Errors, ErrorEntry{Name: o.ID, State: o.State, Error: o.Err.Error()})
		}
	}
	return doc
}

// JSON writes the run as an indented JSON document.
func JSON(w io.Writer, summary *converge.Summary) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewDocument(summary))
}

func outcomeComment(o converge.Outcome) string {
	if o.Err != nil {
		return "error: " + o.Err.Error()
	}
	if o.Report == nil {
		return ""
	}
	return o.Report.Comment
}

func statusSymbol(status converge.Status) string {
	switch status {
	case converge.StatusUnchanged:
		return "✔"
	case converge.StatusChanged:
		return "●"
	case converge.StatusWouldChange:
		return "⚠"
	case converge.StatusFailed:
		return "✖"
	default:
		return "!"
	}
}

func statusStyle(status converge.Status) lipgloss.Style {
	switch status {
	case converge.StatusUnchanged:
		return successStyle
	case converge.StatusChanged:
		return changedStyle
	case converge.StatusWouldChange:
		return pendingStyle
	default:
		return failureStyle
	}
}

func paint(opts Options, style lipgloss.Style, text string) string {
	if !opts.Styled {
		return text
	}
	return style.Render(text)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
