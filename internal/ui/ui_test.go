package ui

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/johnayoung/ai-council/internal/provider"
)

var specs = []provider.ModelSpec{
	{Name: "GPT-4o", Provider: "openai", CodeName: "Alpha"},
	{Name: "Gemini", Provider: "google", CodeName: "Beta"},
}

func TestProgress_Callbacks(t *testing.T) {
	p := NewProgress(&bytes.Buffer{}, specs, true)
	cb := p.Callbacks()

	cb.OnModelStart(specs[0])
	state, ok := p.State("Alpha")
	require.True(t, ok)
	require.Equal(t, StatusRunning, state.Status)

	cb.OnModelComplete(provider.Succeeded(specs[0], "12345678", time.Second))
	cb.OnModelComplete(provider.Failed(specs[1], provider.Timeout, "deadline", 2*time.Second))

	state, _ = p.State("Alpha")
	require.Equal(t, StatusComplete, state.Status)
	require.Equal(t, 8, state.CharCount)

	state, _ = p.State("Beta")
	require.Equal(t, StatusFailed, state.Status)
	require.Equal(t, provider.Timeout, state.Failure.Kind)

	_, ok = p.State("Gamma")
	require.False(t, ok)
}

func TestProgress_Render(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, specs, false)
	p.ModelStarted("Alpha")
	p.ModelCompleted(provider.Failed(specs[1], provider.NetworkFailure, "refused", 0))
	p.render()

	out := buf.String()
	require.Contains(t, out, "Consulting 2 council members")
	require.Contains(t, out, "Alpha (GPT-4o)")
	require.Contains(t, out, "network_failure: refused")
}

func TestPrintModelResponse(t *testing.T) {
	var buf bytes.Buffer
	PrintModelResponse(&buf, provider.Succeeded(specs[0], "line one\nline two", 1500*time.Millisecond))

	out := buf.String()
	require.Contains(t, out, "Alpha · GPT-4o (openai) [1.5s]")
	require.Equal(t, 2, strings.Count(out, "line "))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate(" short\n", 10))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5))
	require.Equal(t, "héll…", truncate("héllo wörld", 5))
}

func TestIsTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()
	require.False(t, IsTerminal(f))
}
