package config

import (
	"os"
	"path/filepath"
	"testing"

	"remsym/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
candidates:
  - /apex/com.android.runtime/lib64/bionic/libc.so
  - /system/bin/linker64
targets:
  - module: libc.so
    symbol: dlopen
  - module: libil2cpp.so
    offset: 0x7e6c098
  - module: libil2cpp.so
    offset: 0
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/apex/com.android.runtime/lib64/bionic/libc.so",
		"/system/bin/linker64",
	}, cfg.Candidates)

	require.Len(t, cfg.Targets, 3)
	assert.Equal(t, resolver.SymbolTarget("libc.so", "dlopen"), cfg.Targets[0])
	assert.Equal(t, resolver.OffsetTarget("libil2cpp.so", 0x7e6c098), cfg.Targets[1])

	// A zero offset is still an offset target.
	require.NotNil(t, cfg.Targets[2].Offset)
	assert.Equal(t, "+0x0", cfg.Targets[2].Name())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("targets:\n  - module: libc.so\n    sym: dlopen\n"))
	assert.Error(t, err)
}

func TestParseRejectsInvalidTargets(t *testing.T) {
	_, err := Parse([]byte(`
targets:
  - module: libc.so
    symbol: dlopen
    offset: 0x10
  - symbol: mmap
  - module: libc.so
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, resolver.ErrTargetAmbiguous)
	assert.ErrorIs(t, err, resolver.ErrTargetNoModule)
	assert.ErrorIs(t, err, resolver.ErrTargetNoReference)
	assert.Contains(t, err.Error(), "targets[1]")
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = Parse([]byte("candidates: [/system/lib64/libc.so]\n"))
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestParseRejectsEmptyCandidate(t *testing.T) {
	_, err := Parse([]byte("candidates: ['']\ntargets:\n  - module: libc.so\n    symbol: dlopen\n"))
	assert.ErrorContains(t, err, "candidates[0]")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Targets, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
