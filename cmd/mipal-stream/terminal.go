package main

import (
	"os"

	"github.com/Fastlanedevs/mipal-analytics-sub002/messages"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	// termenv output for consistent terminal styling; step/status output
	// goes to stderr so piped stdout stays clean message content
	output = termenv.NewOutput(os.Stderr)

	// Style helpers - initialized in initColors()
	errorStyle   termenv.Style
	successStyle termenv.Style
	pendingStyle termenv.Style
	dimStyle     termenv.Style
	boldStyle    termenv.Style
)

// initColors initializes color styles based on terminal background
func initColors() {
	if termenv.HasDarkBackground() {
		errorStyle = output.String().Foreground(output.Color("124"))   // Muted red
		successStyle = output.String().Foreground(output.Color("65"))  // Muted green
		pendingStyle = output.String().Foreground(output.Color("179")) // Muted yellow
		dimStyle = output.String().Faint()
		boldStyle = output.String().Bold()
	} else {
		errorStyle = output.String().Foreground(output.Color("160"))  // Dark red
		successStyle = output.String().Foreground(output.Color("28")) // Dark green
		pendingStyle = output.String().Foreground(output.Color("136"))
		dimStyle = output.String().Foreground(output.Color("240"))
		boldStyle = output.String().Bold()
	}
}

// stepSymbol maps a step status to its terminal affordance
func stepSymbol(status messages.StepStatus) string {
	switch status {
	case messages.StepCompleted:
		return successStyle.Styled("✓")
	case messages.StepError:
		return errorStyle.Styled("✗")
	case messages.StepInProgress:
		return pendingStyle.Styled("…")
	default:
		return dimStyle.Styled("·")
	}
}

// stdinIsTerminal reports whether stdin is attached to a TTY
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
