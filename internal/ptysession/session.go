// Package ptysession implements a single pseudo-terminal-backed shell
// session: the unit of work the Remote Session Broker (spec.md section
// 4.1) manages locally and that the worker-agent HTTP server (section 6)
// exposes remotely. Both callers share this type so the process-completion
// detection, output buffering, and force-kill semantics are implemented
// exactly once.
package ptysession

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

const (
	// outputBufferCapacity bounds the ring buffer (spec.md section 3,
	// "capacity ~10,000 lines").
	outputBufferCapacity = 10000
	// maxOutputChars is the hard cap on any single output read (spec.md
	// section 4.1 and the boundary behavior in section 8).
	maxOutputChars = 30000
	// longCommandThreshold/chunkSize/chunkPause implement spec.md's
	// "long-command sending" rule.
	longCommandThreshold = 500
	chunkSize             = 512
	chunkPause            = 20 * time.Millisecond
	// defaultNoOutputSeconds is the waiting-for-input detection window
	// (spec.md section 4.1).
	defaultNoOutputSeconds = 20
)

// Session is one pty-backed shell, identified by the broker/worker-agent
// as (computer_ip, session_id).
type Session struct {
	ID    string
	Shell string

	mu                sync.Mutex
	pty               *os.File
	cmd               *exec.Cmd
	state             types.SessionState
	buffer            *ringBuffer
	isRunning         bool
	createdAt         time.Time
	lastActivity      time.Time
	commandInProgress bool
	lastCommand       string

	closeOnce sync.Once
	done      chan struct{}
}

// New spawns shell under a real pseudo-terminal rooted at workDir (spec.md
// section 4.1, "binds working directory to /workspace").
func New(id, shell, workDir string) (*Session, error) {
	if shell == "" {
		shell = "/bin/bash"
	}
	cmd := exec.Command(shell)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "TERM=xterm")

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("ptysession: failed to start pty: %w", err)
	}

	now := time.Now()
	s := &Session{
		ID:           id,
		Shell:        shell,
		pty:          f,
		cmd:          cmd,
		state:        types.SessionAlive,
		buffer:       newRingBuffer(outputBufferCapacity),
		isRunning:    true,
		createdAt:    now,
		lastActivity: now,
		done:         make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// readLoop continuously drains the pty into the ring buffer (spec.md
// section 4.1, "output buffering"; section 5, "one background reader
// thread per session").
func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	var partial []byte
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			partial = append(partial, buf[:n]...)
			lines := bytes.Split(partial, []byte("\n"))
			partial = lines[len(lines)-1]
			lines = lines[:len(lines)-1]

			if len(lines) > 0 {
				s.mu.Lock()
				ts := time.Now()
				for _, line := range lines {
					s.buffer.Append(types.OutputLine{Timestamp: ts, Content: toUTF8(line)})
				}
				s.lastActivity = ts
				s.mu.Unlock()
			}
		}
		if err != nil {
			s.mu.Lock()
			if len(partial) > 0 {
				s.buffer.Append(types.OutputLine{Timestamp: time.Now(), Content: toUTF8(partial)})
			}
			s.isRunning = false
			if s.state != types.SessionClosed {
				s.state = types.SessionDead
			}
			s.mu.Unlock()
			close(s.done)
			return
		}
	}
}

func toUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return string(bytes.ToValidUTF8(b, []byte("�")))
}

// Alive reports whether the underlying shell process is still running.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// State returns the current session state-machine value.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CreatedAt and LastActivity report session timestamps.
func (s *Session) CreatedAt() time.Time { s.mu.Lock(); defer s.mu.Unlock(); return s.createdAt }
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// CommandInProgress reports whether a command is still being waited on.
func (s *Session) CommandInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commandInProgress
}

// RunCommand writes command to the pty and, if waitForCompletion, blocks
// until the shell's descendant process tree is empty or the 10.5s hard cap
// (spec.md section 5) expires, at which point it force-kills and reports
// the command as killed.
func (s *Session) RunCommand(ctx context.Context, command string, waitForCompletion bool) (*types.CommandOutputPayload, error) {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil, fmt.Errorf("ptysession: session %q is not alive", s.ID)
	}
	if s.commandInProgress {
		s.mu.Unlock()
		return nil, fmt.Errorf("ptysession: session %q is busy", s.ID)
	}
	s.commandInProgress = true
	s.lastCommand = command
	s.state = types.SessionBusy
	s.mu.Unlock()

	if err := s.send(command + "\n"); err != nil {
		s.mu.Lock()
		s.commandInProgress = false
		s.state = types.SessionAlive
		s.mu.Unlock()
		return nil, err
	}

	if !waitForCompletion {
		return &types.CommandOutputPayload{Async: true, SessionID: s.ID}, nil
	}

	deadline := time.Now().Add(10500 * time.Millisecond)
	for time.Now().Before(deadline) {
		completed, _, err := s.shellChildren()
		if err != nil {
			break
		}
		if completed {
			s.mu.Lock()
			s.commandInProgress = false
			s.state = types.SessionAlive
			s.mu.Unlock()
			return &types.CommandOutputPayload{Output: s.snapshotTail(), SessionID: s.ID}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	// Timed out: force-kill and report as killed (spec.md section 4.1 and
	// the end-to-end scenario "Command exceeds 10s").
	s.KillProcesses(false)
	s.mu.Lock()
	s.buffer.Append(types.OutputLine{Timestamp: time.Now(), Content: "Killed"})
	s.commandInProgress = false
	s.state = types.SessionAlive
	s.mu.Unlock()
	return &types.CommandOutputPayload{
		Output:    s.snapshotTail(),
		Killed:    true,
		SessionID: s.ID,
	}, fmt.Errorf("command %q killed. If you want to run long commands, use wait_for_completion=false", command)
}

// send writes text to the pty, chunking long payloads (spec.md section
// 4.1, "long-command sending").
func (s *Session) send(text string) error {
	data := []byte(text)
	if len(data) <= longCommandThreshold {
		_, err := s.pty.Write(data)
		return err
	}
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		if _, err := s.pty.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
		time.Sleep(chunkPause)
	}
	return nil
}

// InputText writes raw input to the session's stdin, only when the
// session is detected as waiting for input (spec.md section 4.1).
func (s *Session) InputText(text string) error {
	waiting, reason, _, _ := s.CheckInput(defaultNoOutputSeconds)
	if !waiting {
		return fmt.Errorf("ptysession: session %q is not waiting for input: %s", s.ID, reason)
	}
	return s.send(text)
}

// snapshotTail returns the most recent output, truncated to maxOutputChars
// (spec.md section 4.1 and the boundary behavior in section 8).
func (s *Session) snapshotTail() string {
	s.mu.Lock()
	lines := tailN(s.buffer.Snapshot(), 200)
	s.mu.Unlock()
	return truncateTail(joinLines(lines))
}

func truncateTail(s string) string {
	if len(s) <= maxOutputChars {
		return s
	}
	return "...(output truncated)...\n" + s[len(s)-maxOutputChars:]
}

// Output implements get_session_output's slicing contract (spec.md
// section 4.1): since_timestamp overrides line slicing; otherwise
// start_lines/end_lines count from the end with automatic swap.
func (s *Session) Output(startLines, endLines int, sinceTimestamp *time.Time) string {
	s.mu.Lock()
	lines := s.buffer.Snapshot()
	s.mu.Unlock()

	if sinceTimestamp != nil {
		var filtered []types.OutputLine
		for _, l := range lines {
			if l.Timestamp.After(*sinceTimestamp) {
				filtered = append(filtered, l)
			}
		}
		return truncateTail(joinLines(filtered))
	}

	if startLines <= 0 {
		startLines = 100
	}
	if endLines <= 0 {
		return truncateTail(joinLines(tailN(lines, startLines)))
	}
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
	return truncateTail(joinLines(lines[from:to]))
}

// RecentOutput returns output from the last `seconds` of wall-clock time.
func (s *Session) RecentOutput(seconds int) string {
	cutoff := time.Now().Add(-time.Duration(seconds) * time.Second)
	return s.Output(0, 0, &cutoff)
}

// ClearBuffer empties the output ring buffer.
func (s *Session) ClearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = newRingBuffer(outputBufferCapacity)
}

// Close terminates the session's underlying shell process.
func (s *Session) Close() error {
	s.mu.Lock()
	s.state = types.SessionClosed
	s.mu.Unlock()
	var err error
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(syscall.SIGTERM)
		}
		err = s.pty.Close()
	})
	return err
}

func joinLines(lines []types.OutputLine) string {
	var b bytes.Buffer
	for _, l := range lines {
		b.WriteString(l.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func tailN(lines []types.OutputLine, n int) []types.OutputLine {
	if n >= len(lines) {
		return lines
	}
	return lines[len(lines)-n:]
}

func shellBaseName(shell string) string {
	return filepath.Base(shell)
}
