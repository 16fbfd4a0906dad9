package broker

import (
	"context"
	"time"

	"github.com/GAIR-NLP/agentcore/internal/ptysession"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// sessionHandle abstracts a single session regardless of whether it is a
// locally spawned pty or a session reached over the HTTP Session Protocol
// on a remote worker host (spec.md section 4.1, "Abstract away whether the
// host is local or remote").
type sessionHandle interface {
	RunCommand(ctx context.Context, command string, waitForCompletion bool) (*types.CommandOutputPayload, error)
	InputText(text string) error
	Output(startLines, endLines int, sinceTimestamp *time.Time) string
	RecentOutput(seconds int) string
	ClearBuffer()
	Close() error
	Alive() bool
	CommandInProgress() bool
	CreatedAt() time.Time
	LastActivity() time.Time
	ShellChildrenStatus() (ptysession.ShellChildrenStatus, error)
	CheckInput(noOutputSeconds int) (waiting bool, reason string, canInput bool, secondsSinceOutput *float64)
	KillProcesses(force bool) (killed []string, failed []string, signalUsed string)
	ConnectionType() types.ConnectionType
}

// localHandle adapts *ptysession.Session to sessionHandle.
type localHandle struct {
	*ptysession.Session
}

func (localHandle) ConnectionType() types.ConnectionType { return types.ConnectionLocal }
