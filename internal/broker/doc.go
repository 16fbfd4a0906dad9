// Package broker implements the Remote Session Broker (spec.md section
// 4.1): a map of computer_ip to a set of named sessions, each either a
// locally spawned pty (internal/ptysession) or a session reached over the
// HTTP Session Protocol on a remote worker host (section 6). The broker
// enforces the safety invariants on run_command before dispatching and is
// registered into internal/actionreg as the handler for every
// session-lifecycle action.
package broker
