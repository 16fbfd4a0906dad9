package ptysession

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := New("sess-1", "/bin/sh", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_SpawnsAliveSession(t *testing.T) {
	s := newTestSession(t)
	assert.True(t, s.Alive())
	assert.Equal(t, types.SessionAlive, s.State())
}

func TestRunCommand_WaitsForCompletion(t *testing.T) {
	s := newTestSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := s.RunCommand(ctx, "echo hello", true)
	require.NoError(t, err)
	assert.Contains(t, out.Output, "hello")
	assert.False(t, out.Killed)
	assert.False(t, s.CommandInProgress())
}

func TestRunCommand_AsyncReturnsImmediately(t *testing.T) {
	s := newTestSession(t)
	out, err := s.RunCommand(context.Background(), "sleep 0.2", false)
	require.NoError(t, err)
	assert.True(t, out.Async)
}

func TestRunCommand_RejectsWhenBusy(t *testing.T) {
	s := newTestSession(t)
	_, err := s.RunCommand(context.Background(), "sleep 2", false)
	require.NoError(t, err)

	_, err = s.RunCommand(context.Background(), "echo nope", false)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "busy")
}

func TestOutput_StartEndLineSwap(t *testing.T) {
	s := newTestSession(t)
	now := time.Now()
	for i := 0; i < 10; i++ {
		s.buffer.Append(types.OutputLine{Timestamp: now, Content: "line"})
	}
	// start < end should behave as if swapped.
	a := s.Output(2, 5, nil)
	b := s.Output(5, 2, nil)
	assert.Equal(t, a, b)
}

func TestOutput_SinceTimestampOverridesLineSlicing(t *testing.T) {
	s := newTestSession(t)
	old := time.Now().Add(-time.Hour)
	s.buffer.Append(types.OutputLine{Timestamp: old, Content: "stale"})
	cutoff := time.Now().Add(-time.Minute)
	fresh := time.Now()
	s.buffer.Append(types.OutputLine{Timestamp: fresh, Content: "fresh"})

	out := s.Output(1, 0, &cutoff)
	assert.NotContains(t, out, "stale")
	assert.Contains(t, out, "fresh")
}

func TestTruncateTail_CapsAtMaxChars(t *testing.T) {
	s := strings.Repeat("x", maxOutputChars+500)
	out := truncateTail(s)
	assert.LessOrEqual(t, len(out), maxOutputChars+len("...(output truncated)...\n"))
	assert.Contains(t, out, "truncated")
}

func TestClearBuffer_EmptiesRing(t *testing.T) {
	s := newTestSession(t)
	s.buffer.Append(types.OutputLine{Timestamp: time.Now(), Content: "x"})
	s.ClearBuffer()
	assert.Empty(t, s.buffer.Snapshot())
}

func TestClose_MarksClosed(t *testing.T) {
	s, err := New("sess-close", "/bin/sh", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, types.SessionClosed, s.State())
}

func TestCheckInput_NoCommandInProgress(t *testing.T) {
	s := newTestSession(t)
	waiting, _, canInput, since := s.CheckInput(1)
	assert.False(t, waiting)
	assert.False(t, canInput)
	assert.Nil(t, since)
}

func TestRingBuffer_DropsOldestWhenFull(t *testing.T) {
	r := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		r.Append(types.OutputLine{Content: string(rune('a' + i))})
	}
	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "c", snap[0].Content)
	assert.Equal(t, "d", snap[1].Content)
	assert.Equal(t, "e", snap[2].Content)
}

func TestShellBaseName(t *testing.T) {
	assert.Equal(t, "bash", shellBaseName("/bin/bash"))
	assert.Equal(t, "sh", shellBaseName("/bin/sh"))
}

func TestParsePS_SkipsHeaderAndMalformed(t *testing.T) {
	sample := "  PID  PPID STAT COMMAND\n" +
		"    1     0 Ss   init\n" +
		"   42     1 S    bash -c sleep 5\n" +
		"garbage line\n"
	procs := parsePS(sample)
	require.Len(t, procs, 2)
	assert.Equal(t, 1, procs[0].PID)
	assert.Equal(t, 42, procs[1].PID)
	assert.Equal(t, "bash -c sleep 5", procs[1].Args)
}
