package workeragent

import (
	"context"
	"time"

	"github.com/GAIR-NLP/agentcore/internal/ptysession"
)

// backend is the local session surface the HTTP handlers drive; it is
// satisfied by a real pty (ptyBackend) or, when no pty is available, the
// embedded-interpreter fallback (shBackend).
type backend interface {
	RunCommand(ctx context.Context, command string) error
	InputText(text string) error
	Output(startLines, endLines int, sinceTimestamp *time.Time) string
	ClearBuffer()
	Close() error
	Alive() bool
	CreatedAt() time.Time
	LastActivity() time.Time
	ShellChildrenStatus() (ptysession.ShellChildrenStatus, error)
	CheckInput(noOutputSeconds int) (waiting bool, reason string, canInput bool, secondsSinceOutput *float64)
	KillProcesses(force bool) (killed []string, failed []string, signalUsed string)
}

// ptyBackend adapts *ptysession.Session to backend. RunCommand here is
// always fire-and-forget (spec.md section 6's POST .../command has no
// wait_for_completion parameter); the broker owns the wait/timeout policy
// from the client side.
type ptyBackend struct{ *ptysession.Session }

func (b ptyBackend) RunCommand(ctx context.Context, command string) error {
	_, err := b.Session.RunCommand(ctx, command, false)
	return err
}
