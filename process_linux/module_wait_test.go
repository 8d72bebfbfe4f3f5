//go:build linux

package process_linux

import (
	"context"
	"os"
	"testing"
	"time"

	"remsym/process"
	"remsym/process/memory_map"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForModulePresent(t *testing.T) {
	pid := process.ProcessID(os.Getpid())

	w := WaitForModule(context.Background(), pid, "[stack]", memory_map.MatchBasename, 10*time.Millisecond)

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not finish")
	}

	base, err := w.Result()
	require.NoError(t, err)
	assert.NotZero(t, base)
}

func TestWaitForModuleTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	w := WaitForModule(ctx, process.ProcessID(os.Getpid()), "libnot-mapped-anywhere.so", memory_map.MatchBasename, 20*time.Millisecond)

	_, err := w.Result()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWaitForModuleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := WaitForModule(ctx, process.ProcessID(os.Getpid()), "libnot-mapped-anywhere.so", memory_map.MatchBasename, 0)
	cancel()

	_, err := w.Result()
	assert.ErrorIs(t, err, context.Canceled)
}

// appearingMap reports module as mapped from the given call on.
type appearingMap struct {
	calls   int
	appears int
}

func (m *appearingMap) ReadMemoryMap(pid int) ([]memory_map.MemoryMapItem, error) {
	return nil, nil
}

func (m *appearingMap) FindModuleBase(pid int, module string, mode memory_map.MatchMode) (uint64, bool) {
	m.calls++
	if m.calls >= m.appears {
		return 0x7f3000000000, true
	}
	return 0, false
}

func TestPollModuleRetriesUntilMapped(t *testing.T) {
	mm := &appearingMap{appears: 3}

	base, err := pollModule(context.Background(), mm, 4242, "libil2cpp.so", memory_map.MatchBasename, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7f3000000000), base)
	assert.Equal(t, 3, mm.calls)
}
