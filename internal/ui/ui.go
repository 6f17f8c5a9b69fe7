package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/johnayoung/ai-council/internal/provider"
	"github.com/johnayoung/ai-council/internal/runner"
)

// Color codes for terminal output.
const (
	Reset      = "\033[0m"
	Bold       = "\033[1m"
	Dim        = "\033[2m"
	Green      = "\033[32m"
	Yellow     = "\033[33m"
	Blue       = "\033[34m"
	Magenta    = "\033[35m"
	Cyan       = "\033[36m"
	Red        = "\033[31m"
	BoldGreen  = "\033[1;32m"
	BoldYellow = "\033[1;33m"
	BoldBlue   = "\033[1;34m"
	BoldCyan   = "\033[1;36m"
)

// ModelStatus represents the current state of a council member's call.
type ModelStatus int

const (
	StatusPending ModelStatus = iota
	StatusRunning
	StatusComplete
	StatusFailed
)

// ModelState holds the state of a single council member.
type ModelState struct {
	CodeName  string
	Label     string
	Status    ModelStatus
	StartTime time.Time
	EndTime   time.Time
	Failure   *provider.Failure
	CharCount int
}

// Progress displays real-time progress of a consultation round.
type Progress struct {
	mu        sync.Mutex
	w         io.Writer
	models    map[string]*ModelState
	order     []string
	startTime time.Time
	ticker    *time.Ticker
	done      chan struct{}
	quiet     bool
	rendered  bool
}

// NewProgress creates a progress display for specs, keyed by code name.
func NewProgress(w io.Writer, specs []provider.ModelSpec, quiet bool) *Progress {
	p := &Progress{
		w:         w,
		models:    make(map[string]*ModelState),
		startTime: time.Now(),
		done:      make(chan struct{}),
		quiet:     quiet,
	}

	for _, s := range specs {
		p.order = append(p.order, s.CodeName)
		p.models[s.CodeName] = &ModelState{
			CodeName: s.CodeName,
			Label:    fmt.Sprintf("%s (%s)", s.CodeName, s.Name),
			Status:   StatusPending,
		}
	}

	return p
}

// Callbacks returns runner hooks that feed the display.
func (p *Progress) Callbacks() runner.Callbacks {
	return runner.Callbacks{
		OnModelStart:    func(spec provider.ModelSpec) { p.ModelStarted(spec.CodeName) },
		OnModelComplete: p.ModelCompleted,
	}
}

// Start begins the progress display refresh loop.
func (p *Progress) Start() {
	if p.quiet {
		return
	}

	p.ticker = time.NewTicker(100 * time.Millisecond)
	go func() {
		for {
			select {
			case <-p.ticker.C:
				p.render()
			case <-p.done:
				return
			}
		}
	}()

	p.render()
}

// Stop ends the progress display.
func (p *Progress) Stop() {
	if p.quiet {
		return
	}

	close(p.done)
	if p.ticker != nil {
		p.ticker.Stop()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rendered {
		p.clearLines(len(p.order) + 2)
	}
}

// ModelStarted marks a council member as called.
func (p *Progress) ModelStarted(codeName string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, ok := p.models[codeName]; ok {
		state.Status = StatusRunning
		state.StartTime = time.Now()
	}
}

// ModelCompleted records the outcome of a council member's call.
func (p *Progress) ModelCompleted(result provider.ModelResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.models[result.Spec.CodeName]
	if !ok {
		return
	}
	state.EndTime = time.Now()
	if state.StartTime.IsZero() {
		state.StartTime = state.EndTime.Add(-result.Latency)
	}
	if result.OK() {
		state.Status = StatusComplete
		state.CharCount = len(result.Text)
		return
	}
	state.Status = StatusFailed
	state.Failure = result.Failure
}

// State returns a copy of the state of codeName.
func (p *Progress) State(codeName string) (ModelState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.models[codeName]
	if !ok {
		return ModelState{}, false
	}
	return *state, true
}

// render draws the current progress state.
func (p *Progress) render() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rendered {
		p.clearLines(len(p.order) + 2)
	}
	p.rendered = true

	elapsed := time.Since(p.startTime)

	fmt.Fprintf(p.w, "%s⚡ Consulting %d council members%s %s(%.1fs)%s\n",
		BoldCyan, len(p.order), Reset,
		Dim, elapsed.Seconds(), Reset)

	for _, code := range p.order {
		p.renderModelLine(p.models[code])
	}

	fmt.Fprintln(p.w)
}

// renderModelLine draws a single council member's status.
func (p *Progress) renderModelLine(state *ModelState) {
	var icon, color, status string

	switch state.Status {
	case StatusPending:
		icon = "○"
		color = Dim
		status = "pending"
	case StatusRunning:
		icon = spinner(time.Now())
		color = Yellow
		status = fmt.Sprintf("thinking... %.1fs", time.Since(state.StartTime).Seconds())
	case StatusComplete:
		icon = "✓"
		color = Green
		duration := state.EndTime.Sub(state.StartTime)
		// ~4 chars per token
		status = fmt.Sprintf("done ~%d tokens in %.1fs", state.CharCount/4, duration.Seconds())
	case StatusFailed:
		icon = "✗"
		color = Red
		status = fmt.Sprintf("%s: %s", state.Failure.Kind, truncate(state.Failure.Detail, 60))
	}

	fmt.Fprintf(p.w, "  %s%s%s %-30s %s%s%s\n",
		color, icon, Reset,
		truncate(state.Label, 30),
		color, status, Reset)
}

// clearLines moves cursor up and clears lines.
func (p *Progress) clearLines(n int) {
	for i := 0; i < n; i++ {
		fmt.Fprintf(p.w, "\033[A\033[K") // Move up, clear line
	}
}

// spinner returns a spinning character based on time.
func spinner(t time.Time) string {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	idx := int(t.UnixMilli()/100) % len(frames)
	return frames[idx]
}

// truncate shortens a string to max runes.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}

// PrintHeader prints a styled header.
func PrintHeader(w io.Writer, question string) {
	fmt.Fprintf(w, "\n%s╭─ AI Council ─╮%s\n", BoldCyan, Reset)
	fmt.Fprintf(w, "%s│%s Question: %s%s%s\n", Cyan, Reset, Dim, truncate(question, 60), Reset)
	fmt.Fprintf(w, "%s╰──────────────╯%s\n\n", Cyan, Reset)
}

// PrintPhase prints a phase header.
func PrintPhase(w io.Writer, phase string) {
	fmt.Fprintf(w, "%s▸ %s%s\n", BoldYellow, phase, Reset)
}

// PrintSuccess prints a success message.
func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s✓ %s%s\n", Green, msg, Reset)
}

// PrintError prints an error message.
func PrintError(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s✗ %s%s\n", Red, msg, Reset)
}

// PrintModelResponse prints a council member's response.
func PrintModelResponse(w io.Writer, r provider.ModelResult) {
	fmt.Fprintf(w, "\n%s┌─ %s · %s (%s) [%.1fs] ─┐%s\n",
		Blue, r.Spec.CodeName, r.Spec.Name, r.Spec.Provider, r.Latency.Seconds(), Reset)

	for _, line := range strings.Split(r.Text, "\n") {
		fmt.Fprintf(w, "%s│%s %s\n", Blue, Reset, line)
	}
	fmt.Fprintf(w, "%s└─────────────────────────┘%s\n", Blue, Reset)
}

// PrintConsensus prints the synthesized answer.
func PrintConsensus(w io.Writer, synthesizer, consensus string) {
	fmt.Fprintf(w, "\n%s╔═══ CONSENSUS (synthesized by %s) ═══╗%s\n", BoldGreen, synthesizer, Reset)

	for _, line := range strings.Split(consensus, "\n") {
		fmt.Fprintf(w, "%s║%s %s\n", Green, Reset, line)
	}
	fmt.Fprintf(w, "%s╚═════════════════╝%s\n", Green, Reset)
}

// PrintSummary prints a summary of the run.
func PrintSummary(w io.Writer, totalModels, successful, failed int, totalTime time.Duration) {
	fmt.Fprintf(w, "\n%s─── Summary ───%s\n", Dim, Reset)
	fmt.Fprintf(w, "Council members consulted: %d (%s%d succeeded%s, %s%d failed%s)\n",
		totalModels,
		Green, successful, Reset,
		Red, failed, Reset)
	fmt.Fprintf(w, "Total time: %.1fs\n", totalTime.Seconds())
}

// IsTerminal checks if the given file is a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
