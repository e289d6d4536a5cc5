package main

import (
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// isTerminal reports whether stdout is an interactive terminal. Colored
// status lines are only worth the escape codes when a human is watching;
// piped/redirected output (cron, CI, docker logs) gets plain text. Grounded
// on the teacher's cmd/cobra_cli.go isInteractive() check.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	colorGreen = color.New(color.FgGreen).SprintFunc()
	colorRed   = color.New(color.FgRed).SprintFunc()
)

func statusLine(label string, ok bool, detail string) string {
	if !isTerminal() {
		if ok {
			return label + ": ok " + detail
		}
		return label + ": failed " + detail
	}
	if ok {
		return colorGreen(label+": ok") + " " + detail
	}
	return colorRed(label+": failed") + " " + detail
}
