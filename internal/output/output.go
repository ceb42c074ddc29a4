// Package output renders conversation and result output for the CLI,
// with colored agent labels and tabular test results.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/thruflo/drafter/internal/api"
	"github.com/thruflo/drafter/internal/transcript"
)

// UI provides colored output and respects verbose mode.
type UI struct {
	Verbose bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
	magenta       = color.New(color.FgHiMagenta).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// AgentLabel returns the colored display label for an agent.
func AgentLabel(agent transcript.AgentType) string {
	switch agent {
	case transcript.AgentDesigner:
		return cyan("designer")
	case transcript.AgentQA:
		return magenta("qa")
	default:
		return "assistant"
	}
}

// TestStatusColor returns the string colored by test status.
func TestStatusColor(status string) string {
	switch status {
	case api.TestStatusPassed:
		return green(status)
	case api.TestStatusFailed, api.TestStatusError:
		return red(status)
	case api.TestStatusSkipped:
		return yellow(status)
	default:
		return status
	}
}

// OutcomeColor returns the loop outcome colored by how the round ended.
func OutcomeColor(outcome string) string {
	switch strings.ToLower(outcome) {
	case "passed":
		return green(outcome)
	case "continue":
		return yellow(outcome)
	case "stopped", "max iterations":
		return cyan(outcome)
	case "error":
		return red(outcome)
	default:
		return outcome
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

// AgentHeader prints the label that precedes an agent's streamed turn.
func (u *UI) AgentHeader(agent transcript.AgentType) {
	fmt.Fprintf(u.Out, "\n%s: ", AgentLabel(agent))
}

// Delta writes one streamed text fragment without any decoration, so
// consecutive deltas render as continuous prose.
func (u *UI) Delta(text string) {
	fmt.Fprint(u.Out, text)
}

// EndTurn terminates a streamed turn with a newline.
func (u *UI) EndTurn() {
	fmt.Fprintln(u.Out)
}

// Code prints the current generated code with a dimmed rule around it.
func (u *UI) Code(code string) {
	if code == "" {
		return
	}
	rule := color.New(color.Faint).Sprint(strings.Repeat("-", 40))
	fmt.Fprintf(u.Out, "%s\n%s\n%s\n", rule, code, rule)
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// TestResults renders a test suite result as a table plus a count line.
func (u *UI) TestResults(result *api.TestSuiteResult) {
	if result == nil {
		return
	}

	if len(result.Tests) > 0 {
		table := u.Table([]string{"TEST", "STATUS", "MESSAGE"})
		for _, tr := range result.Tests {
			table.Append([]string{tr.Name, TestStatusColor(tr.Status), tr.Message})
		}
		_ = table.Render()
	}

	counts := fmt.Sprintf("%d passed, %d failed, %d skipped, %d errors",
		result.Passed, result.Failed, result.Skipped, result.Errors)
	if result.Success {
		u.Success("%s", counts)
	} else {
		u.Warning("%s", counts)
	}
}
