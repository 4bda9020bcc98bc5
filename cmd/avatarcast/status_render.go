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
	statusError: {"ERROR", "\x1b[31m"},
}

const statusLabelWidth = 20

func paint(text string, kind statusKind, colorize bool) string {
	if !colorize {
		return text
	}
	return statusStyles[kind].color + text + ansiReset
}

// renderStatusLine formats "  Label:   [KIND] message".
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	badge := "[" + statusStyles[kind].label + "]"
	if message != "" {
		badge += " " + message
	}
	return paint(fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", badge), kind, colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	return []string{
		paint(line, statusInfo, colorize),
		paint(strings.Repeat("-", len(line)), statusInfo, colorize),
	}
}

// jobStateKind maps a job or export task state onto a display kind.
func jobStateKind(state string) statusKind {
	switch state {
	case "succeeded", "done":
		return statusOK
	case "failed":
		return statusError
	case "cancelled", "skipped":
		return statusWarn
	default:
		return statusInfo
	}
}

func colorizeState(state string, colorize bool) string {
	return paint(state, jobStateKind(state), colorize)
}

// shouldColorize reports whether writer is a terminal and NO_COLOR is unset.
func shouldColorize(writer io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
