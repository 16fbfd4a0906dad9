package safety

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Violation describes why a command was refused by the broker's safety
// validator. It never mutates session state; the caller turns it into a
// failure Observation.
type Violation struct {
	Reason string
}

func (v *Violation) Error() string { return v.Reason }

// forceKillTokens must never reach run_command; force-kill has to go
// through the broker's own KillSessionProcesses so it can be scoped to a
// session's descendant tree.
var forceKillTokens = map[string]bool{
	"kill":    true,
	"pkill":   true,
	"killall": true,
	"nohup":   true,
}

// workspaceRoot is the only directory tree rm is allowed to touch.
const workspaceRoot = "/workspace"

// ValidateRunCommand parses command into shell segments (split on &&, ||,
// ;) and rejects it if any segment invokes a force-kill token or an rm
// whose target escapes /workspace. A nil return means the command is safe
// to dispatch.
func ValidateRunCommand(command string) *Violation {
	commands, err := ParseBashCommand(command)
	if err != nil {
		return &Violation{Reason: fmt.Sprintf("could not parse command: %v", err)}
	}

	for _, cmd := range commands {
		if forceKillTokens[cmd.Name] {
			return &Violation{Reason: fmt.Sprintf(
				"command %q is disallowed; use kill_session_processes to force-kill a session", cmd.Name)}
		}
		for _, arg := range cmd.Args {
			if forceKillTokens[arg] {
				return &Violation{Reason: fmt.Sprintf(
					"command references %q; use kill_session_processes to force-kill a session", arg)}
			}
		}

		if cmd.Name == "rm" {
			for _, target := range ExtractPaths(cmd) {
				if v := validateRmTarget(target); v != nil {
					return v
				}
			}
		}
	}

	return nil
}

func validateRmTarget(raw string) *Violation {
	if !strings.HasPrefix(raw, "/") {
		return &Violation{Reason: fmt.Sprintf("rm target %q is not an absolute path", raw)}
	}

	cleaned := filepath.Clean(raw)
	if cleaned == workspaceRoot {
		return &Violation{Reason: "rm may not target /workspace itself"}
	}
	if cleaned != workspaceRoot && !strings.HasPrefix(cleaned, workspaceRoot+"/") {
		return &Violation{Reason: fmt.Sprintf("path %q is not under /workspace", cleaned)}
	}
	return nil
}
