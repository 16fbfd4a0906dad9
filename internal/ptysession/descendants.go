package ptysession

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// procInfo is one row of a `ps` snapshot.
type procInfo struct {
	PID, PPID int
	Stat      string
	Comm      string
	Args      string
}

func (p procInfo) String() string {
	return fmt.Sprintf("pid=%d stat=%s cmd=%s", p.PID, p.Stat, p.Args)
}

// listDescendants runs the ps probe (spec.md section 4.1) and returns
// rootPID's descendants as filtered by filterDescendants.
func listDescendants(rootPID int, shell string) ([]procInfo, error) {
	out, err := exec.Command("ps", "-eo", "pid,ppid,stat,comm,args").Output()
	if err != nil {
		return nil, fmt.Errorf("ptysession: ps probe failed: %w", err)
	}
	return filterDescendants(parsePS(string(out)), rootPID, shell), nil
}

// filterDescendants returns every process in all transitively parented by
// rootPID, filtering out: the ps probe itself, bare interactive shells
// with no running script, kernel threads (bracketed names), and
// zombie/stopped processes.
func filterDescendants(all []procInfo, rootPID int, shell string) []procInfo {
	byParent := make(map[int][]procInfo)
	for _, p := range all {
		byParent[p.PPID] = append(byParent[p.PPID], p)
	}

	var descendants []procInfo
	var walk func(pid int)
	walk = func(pid int) {
		for _, child := range byParent[pid] {
			descendants = append(descendants, child)
			walk(child.PID)
		}
	}
	walk(rootPID)

	shellName := shellBaseName(shell)
	var filtered []procInfo
	for _, p := range descendants {
		if strings.HasPrefix(p.Comm, "ps") && strings.Contains(p.Args, "-eo pid,ppid,stat,comm,args") {
			continue // the probe itself
		}
		if strings.HasPrefix(p.Comm, "[") && strings.HasSuffix(p.Comm, "]") {
			continue // kernel thread
		}
		if len(p.Stat) > 0 && (p.Stat[0] == 'Z' || p.Stat[0] == 'T') {
			continue // zombie or stopped
		}
		if p.Comm == shellName && p.PPID == rootPID {
			continue // bare interactive shell with no running script
		}
		filtered = append(filtered, p)
	}
	return filtered
}

func parsePS(output string) []procInfo {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) <= 1 {
		return nil
	}
	var procs []procInfo
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		pid, err1 := strconv.Atoi(fields[0])
		ppid, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		procs = append(procs, procInfo{
			PID:  pid,
			PPID: ppid,
			Stat: fields[2],
			Comm: fields[3],
			Args: strings.Join(fields[3:], " "),
		})
	}
	return procs
}

// shellChildren reports whether the session's command is complete: the
// filtered descendant list is empty, or the shell process itself has
// exited (spec.md section 4.1). It does not consult commandInProgress.
func (s *Session) shellChildren() (completed bool, reason string, err error) {
	if s.cmd.Process == nil {
		return true, "shell process has no pid", nil
	}
	if !s.Alive() {
		return true, "shell process has exited", nil
	}

	descendants, err := listDescendants(s.cmd.Process.Pid, s.Shell)
	if err != nil {
		return false, "", err
	}
	if len(descendants) == 0 {
		return true, "no active descendant processes", nil
	}

	var parts []string
	for _, d := range descendants {
		parts = append(parts, d.String())
	}
	return false, "active descendants: " + strings.Join(parts, ", "), nil
}

// ShellChildrenStatus is the public view used by session_status/session_idle
// and the HTTP /shell_children endpoint (spec.md section 6).
type ShellChildrenStatus struct {
	Completed     bool
	Reason        string
	ChildrenCount int
	ChildrenInfo  []string
}

func (s *Session) ShellChildrenStatus() (ShellChildrenStatus, error) {
	if s.cmd.Process == nil || !s.Alive() {
		return ShellChildrenStatus{Completed: true, Reason: "shell process has exited"}, nil
	}
	descendants, err := listDescendants(s.cmd.Process.Pid, s.Shell)
	if err != nil {
		return ShellChildrenStatus{}, err
	}
	if len(descendants) == 0 {
		return ShellChildrenStatus{Completed: true, Reason: "no active descendant processes"}, nil
	}
	info := make([]string, len(descendants))
	for i, d := range descendants {
		info[i] = d.String()
	}
	return ShellChildrenStatus{Completed: false, Reason: "active descendants present", ChildrenCount: len(descendants), ChildrenInfo: info}, nil
}

// CheckInput implements waiting-for-input detection (spec.md section 4.1):
// a command is in progress, at least one descendant is running, and no new
// output has been appended for at least noOutputSeconds.
func (s *Session) CheckInput(noOutputSeconds int) (waiting bool, reason string, canInput bool, secondsSinceOutput *float64) {
	s.mu.Lock()
	inProgress := s.commandInProgress
	lastActivity := s.lastActivity
	s.mu.Unlock()

	if !inProgress {
		return false, "no command in progress", false, nil
	}

	status, err := s.ShellChildrenStatus()
	if err != nil {
		return false, fmt.Sprintf("failed to probe descendants: %v", err), false, nil
	}
	if status.Completed {
		return false, "no active descendant process", false, nil
	}

	since := time.Since(lastActivity).Seconds()
	if since < float64(noOutputSeconds) {
		return false, fmt.Sprintf("output still arriving (%.1fs since last line)", since), false, &since
	}
	return true, "no output for " + strconv.Itoa(noOutputSeconds) + "s with an active descendant", true, &since
}

// KillProcesses implements the force-kill protocol (spec.md section 4.1):
// force=false sends TERM, waits 1s, then KILLs survivors; force=true sends
// KILL directly.
func (s *Session) KillProcesses(force bool) (killed []string, failed []string, signalUsed string) {
	if s.cmd.Process == nil {
		return nil, nil, ""
	}
	descendants, err := listDescendants(s.cmd.Process.Pid, s.Shell)
	if err != nil {
		return nil, nil, ""
	}

	signal := "SIGTERM"
	if force {
		signal = "SIGKILL"
	}
	for _, d := range descendants {
		sig := "-TERM"
		if force {
			sig = "-KILL"
		}
		if err := exec.Command("kill", sig, strconv.Itoa(d.PID)).Run(); err != nil {
			failed = append(failed, strconv.Itoa(d.PID))
		} else {
			killed = append(killed, strconv.Itoa(d.PID))
		}
	}

	if !force {
		time.Sleep(1 * time.Second)
		survivors, err := listDescendants(s.cmd.Process.Pid, s.Shell)
		if err == nil && len(survivors) > 0 {
			for _, d := range survivors {
				if err := exec.Command("kill", "-KILL", strconv.Itoa(d.PID)).Run(); err != nil {
					failed = append(failed, strconv.Itoa(d.PID))
				} else {
					killed = append(killed, strconv.Itoa(d.PID))
				}
			}
			signal = "SIGKILL"
		}
	}

	s.mu.Lock()
	s.commandInProgress = false
	s.mu.Unlock()

	return killed, failed, signal
}
