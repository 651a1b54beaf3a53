// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// isTerminal reports whether v is an *os.File attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// colorsEnabled decides whether out gets ANSI colours. NO_COLOR wins over
// FORCE_COLOR, which wins over TTY detection (https://no-color.org/).
func colorsEnabled(out io.Writer, getenv func(string) string) bool {
	if getenv("NO_COLOR") != "" {
		return false
	}
	if getenv("FORCE_COLOR") != "" {
		return true
	}
	return isTerminal(out)
}

// configureColors sets the lipgloss profile for out.
func configureColors(out io.Writer, getenv func(string) string) {
	if !colorsEnabled(out, getenv) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(out).ColorProfile())
}

// =============================================================================
// SECRET INPUT
// =============================================================================

// TTYRequiredError is returned when an operation needs a terminal.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	return "stdin is not a terminal; cannot " + e.Operation + " interactively"
}

// readSecret prompts on errOut and reads a line without echo.
func readSecret(in io.Reader, errOut io.Writer, prompt, operation string) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", &TTYRequiredError{Operation: operation}
	}

	io.WriteString(errOut, prompt)
	b, err := term.ReadPassword(int(f.Fd()))
	io.WriteString(errOut, "\n")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
