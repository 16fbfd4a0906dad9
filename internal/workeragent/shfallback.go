package workeragent

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/GAIR-NLP/agentcore/internal/ptysession"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// shBackend is the "embedded shell fallback when no real pty is available"
// (SPEC_FULL.md's DOMAIN STACK wiring of mvdan.cc/sh/v3/interp): it runs
// each command to completion synchronously through an in-process POSIX
// shell interpreter instead of spawning a pty-backed process tree. Because
// there is no separate descendant-process tree to poll, every command
// blocks the caller until it finishes (or a timeout fires) and
// waiting-for-input is never detected -- a known, deliberate limitation of
// running without a real pty.
type shBackend struct {
	mu           sync.Mutex
	dir          string
	runner       *interp.Runner
	lines        []types.OutputLine
	createdAt    time.Time
	lastActivity time.Time
	alive        bool
}

const shFallbackLineCap = 10000

func newShBackend(dir string) (*shBackend, error) {
	var out bytes.Buffer
	runner, err := interp.New(interp.Dir(dir), interp.StdIO(nil, &out, &out))
	if err != nil {
		return nil, fmt.Errorf("workeragent: failed to create shell interpreter: %w", err)
	}
	now := time.Now()
	return &shBackend{dir: dir, runner: runner, createdAt: now, lastActivity: now, alive: true}, nil
}

func (b *shBackend) RunCommand(ctx context.Context, command string) error {
	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return fmt.Errorf("workeragent: failed to parse command: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, 10500*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	b.mu.Lock()
	interp.StdIO(nil, &out, &out)(b.runner)
	runErr := b.runner.Run(runCtx, prog)
	b.mu.Unlock()

	b.mu.Lock()
	now := time.Now()
	for _, line := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		b.lines = append(b.lines, types.OutputLine{Timestamp: now, Content: line})
	}
	if len(b.lines) > shFallbackLineCap {
		b.lines = b.lines[len(b.lines)-shFallbackLineCap:]
	}
	b.lastActivity = now
	b.mu.Unlock()

	return runErr
}

func (b *shBackend) InputText(text string) error {
	return fmt.Errorf("workeragent: the embedded shell fallback has no interactive stdin")
}

func (b *shBackend) Output(startLines, endLines int, sinceTimestamp *time.Time) string {
	b.mu.Lock()
	lines := append([]types.OutputLine(nil), b.lines...)
	b.mu.Unlock()

	if sinceTimestamp != nil {
		var filtered []types.OutputLine
		for _, l := range lines {
			if l.Timestamp.After(*sinceTimestamp) {
				filtered = append(filtered, l)
			}
		}
		return joinOutputLines(filtered)
	}
	if startLines <= 0 {
		startLines = 100
	}
	if endLines > 0 {
		if startLines < endLines {
			startLines, endLines = endLines, startLines
		}
		n := len(lines)
		from := n - startLines
		if from < 0 {
			from = 0
		}
		to := n - endLines
		if to < from {
			to = from
		}
		return joinOutputLines(lines[from:to])
	}
	if startLines >= len(lines) {
		return joinOutputLines(lines)
	}
	return joinOutputLines(lines[len(lines)-startLines:])
}

func joinOutputLines(lines []types.OutputLine) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func (b *shBackend) ClearBuffer() {
	b.mu.Lock()
	b.lines = nil
	b.mu.Unlock()
}

func (b *shBackend) Close() error {
	b.mu.Lock()
	b.alive = false
	b.mu.Unlock()
	return nil
}

func (b *shBackend) Alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alive
}

func (b *shBackend) CreatedAt() time.Time    { return b.createdAt }
func (b *shBackend) LastActivity() time.Time { b.mu.Lock(); defer b.mu.Unlock(); return b.lastActivity }

// ShellChildrenStatus always reports complete: RunCommand already ran the
// command to completion synchronously before returning.
func (b *shBackend) ShellChildrenStatus() (ptysession.ShellChildrenStatus, error) {
	return ptysession.ShellChildrenStatus{Completed: true, Reason: "embedded shell runs commands synchronously"}, nil
}

func (b *shBackend) CheckInput(noOutputSeconds int) (bool, string, bool, *float64) {
	return false, "embedded shell fallback has no interactive stdin", false, nil
}

func (b *shBackend) KillProcesses(force bool) ([]string, []string, string) {
	return nil, nil, ""
}
