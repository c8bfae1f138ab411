package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

var statusStyles = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"FAIL", "\x1b[31m"},
}

const labelWidth = 18

func statusKindLabel(kind statusKind) string {
	if style, ok := statusStyles[kind]; ok {
		return style.label
	}
	return statusStyles[statusInfo].label
}

func paint(kind statusKind, s string, colorize bool) string {
	style, ok := statusStyles[kind]
	if !colorize || !ok {
		return s
	}
	return style.color + s + ansiReset
}

// renderStatusLine renders "  Label:  [KIND] message".
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	value := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		value += " " + message
	}
	return paint(kind, renderValueLine(label, value), colorize)
}

func renderValueLine(label, value string) string {
	return fmt.Sprintf("  %-*s %s", labelWidth, label+":", value)
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	return []string{
		paint(statusInfo, heading, colorize),
		paint(statusInfo, strings.Repeat("-", len(heading)), colorize),
	}
}

// shouldColorize reports whether w is an interactive terminal.
func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printLines(w io.Writer, lines ...string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
