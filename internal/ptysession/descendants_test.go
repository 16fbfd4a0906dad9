package ptysession

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListDescendants_FiltersProbeKernelThreadsAndZombies(t *testing.T) {
	root := 100
	all := []procInfo{
		{PID: 100, PPID: 1, Stat: "Ss", Comm: "bash", Args: "bash"},
		{PID: 101, PPID: 100, Stat: "S", Comm: "sleep", Args: "sleep 5"},
		{PID: 102, PPID: 100, Stat: "Z", Comm: "defunct", Args: "defunct"},
		{PID: 103, PPID: 100, Stat: "T", Comm: "stopped", Args: "stopped"},
		{PID: 104, PPID: 101, Stat: "S", Comm: "[kworker/0:1]", Args: "[kworker/0:1]"},
		{PID: 105, PPID: 100, Stat: "R+", Comm: "ps", Args: "ps -eo pid,ppid,stat,comm,args"},
	}

	filtered := filterDescendants(all, root, "/bin/bash")

	assert.Len(t, filtered, 1)
	assert.Equal(t, 101, filtered[0].PID)
}

func TestParsePS_ProducesArgsJoinedFromCommandField(t *testing.T) {
	sample := "PID PPID STAT COMMAND\n7 1 S python train.py --epochs 3\n"
	procs := parsePS(sample)
	assert.Len(t, procs, 1)
	assert.Equal(t, "python train.py --epochs 3", procs[0].Args)
}
