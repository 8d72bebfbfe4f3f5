//go:build linux

package process_linux

import (
	"path/filepath"
	"testing"

	"remsym/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	status := `Name:	sleep
Umask:	0022
State:	S (sleeping)
Tgid:	1234
Pid:	1234
PPid:	1200
TracerPid:	0
Threads:	1
`
	var info process.ProcessInfo
	parseStatus(status, &info)

	assert.Equal(t, process.ProcessSleeping, info.State)
}

func TestParseStatusZombie(t *testing.T) {
	var info process.ProcessInfo
	parseStatus("broken line\nState:\tZ (zombie)\nState:\n", &info)

	assert.Equal(t, process.ProcessZombie, info.State)
	assert.False(t, info.State.IsTraceable())
}

func TestFindProcessByPID(t *testing.T) {
	pid := startSleeper(t)

	info, err := NewProcessFinder().FindProcessByPID(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, info.PID)
	assert.Equal(t, "sleep", info.Name)
	assert.True(t, filepath.IsAbs(info.Exe), info.Exe)
	assert.True(t, info.State.IsTraceable())
}

func TestFindProcessByName(t *testing.T) {
	pid := startSleeper(t)
	finder := NewProcessFinder()

	processes, err := finder.FindProcessByName("sleep")
	require.NoError(t, err)

	var pids []process.ProcessID
	for _, p := range processes {
		pids = append(pids, p.PID)
	}
	assert.Contains(t, pids, pid)

	lowest, err := finder.FindPIDByName("sleep")
	require.NoError(t, err)
	assert.LessOrEqual(t, lowest, pid)

	_, err = finder.FindProcessByName("")
	assert.Error(t, err)

	_, err = finder.FindPIDByName("no-such-process-name-here")
	assert.ErrorIs(t, err, process.ErrProcessNotFound)
}

func TestParsePID(t *testing.T) {
	finder := NewProcessFinder()

	pid, err := finder.ParsePID("4242")
	require.NoError(t, err)
	assert.Equal(t, process.ProcessID(4242), pid)

	_, err = finder.ParsePID("no-such-process-name-here")
	assert.ErrorIs(t, err, process.ErrProcessNotFound)
}
