package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderStatusLinePlain(t *testing.T) {
	got := renderStatusLine("Provider", statusOK, "reachable", false)
	if !strings.HasPrefix(got, "  Provider:") || !strings.HasSuffix(got, "[OK] reachable") {
		t.Fatalf("unexpected line %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Fatalf("plain line contains escape codes: %q", got)
	}
}

func TestRenderStatusLineColored(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "", true)
	if !strings.HasPrefix(got, "\x1b[31m") || !strings.HasSuffix(got, "[ERROR]"+ansiReset) {
		t.Fatalf("unexpected colored line %q", got)
	}
}

func TestJobStateKind(t *testing.T) {
	tests := map[string]statusKind{
		"succeeded":  statusOK,
		"done":       statusOK,
		"failed":     statusError,
		"cancelled":  statusWarn,
		"skipped":    statusWarn,
		"processing": statusInfo,
	}
	for state, want := range tests {
		if got := jobStateKind(state); got != want {
			t.Errorf("jobStateKind(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestShouldColorizeNonTerminal(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffer should not be colorized")
	}
	t.Setenv("NO_COLOR", "1")
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("NO_COLOR should disable color")
	}
}
