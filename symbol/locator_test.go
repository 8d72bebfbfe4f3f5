package symbol

import (
	"bytes"
	"debug/elf"
	"errors"
	"os"
	"strings"
	"testing"

	"remsym/internal/elftest"
	"remsym/process/memory_map"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaps struct {
	text string
	err  error
}

func (f fakeMaps) ReadSelfMemoryMap() ([]memory_map.MemoryMapItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return memory_map.ParseMemoryMap(strings.NewReader(f.text))
}

type fakeImages struct {
	files  map[string][]byte
	opened []string
}

func (f *fakeImages) OpenImage(path string) (*Image, error) {
	f.opened = append(f.opened, path)
	data, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return NewImage(bytes.NewReader(data), path)
}

const selfMaps = `5a0000000000-5a0000001000 r-xp 00000000 fd:01 1 /data/local/tmp/remsym
7f2000000000-7f2000001000 r--p 00000000 fd:01 2 /apex/com.android.runtime/lib64/bionic/libc.so
7f2000001000-7f2000100000 r-xp 00001000 fd:01 2 /apex/com.android.runtime/lib64/bionic/libc.so
7f3000000000-7f3000100000 r-xp 00000000 fd:01 3 /apex/com.android.runtime/bin/linker64
7f4000000000-7f4000100000 r-xp 00000000 fd:01 4 /data/app/libgame.so (deleted)
`

func newFakeImages() *fakeImages {
	return &fakeImages{files: map[string][]byte{
		"/data/local/tmp/remsym": elftest.Build(elftest.Options{}, elftest.Func("main", 0x100)),
		"/apex/com.android.runtime/lib64/bionic/libc.so": elftest.Build(elftest.Options{},
			elftest.Func("dlopen", 0x1234),
			elftest.Func("mmap", 0x5678),
		),
		"/apex/com.android.runtime/bin/linker64": elftest.Build(elftest.Options{},
			elftest.Func("__loader_dlopen", 0x4444),
			elftest.Func("dlopen", 0x9999),
		),
		"/system/lib64/libgame.so": elftest.Build(elftest.Options{}, elftest.Func("_ZN6Camera8get_mainEv", 0x7e6c098)),
	}}
}

func TestLocatorProcessWide(t *testing.T) {
	images := newFakeImages()
	l := NewLocator(fakeMaps{text: selfMaps}, WithImageOpener(images))

	addr, err := l.Lookup("dlopen")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7f2000001234), addr.Value, "libc wins over the dynamic linker")
	assert.Equal(t, "/apex/com.android.runtime/lib64/bionic/libc.so", addr.Image)
	assert.Equal(t, uint64(0x7f2000000000), addr.Base)
	assert.Equal(t, elf.EM_AARCH64, addr.Machine)
	assert.Equal(t, "dlopen", addr.Symbol.Name)
}

func TestLocatorFallbackToDynamicLinker(t *testing.T) {
	images := newFakeImages()
	l := NewLocator(fakeMaps{text: selfMaps}, WithImageOpener(images))

	addr, err := l.Lookup("__loader_dlopen")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7f3000004444), addr.Value)
	assert.Equal(t, "/apex/com.android.runtime/bin/linker64", addr.Image)
}

func TestLocatorFallbackCandidateByBasename(t *testing.T) {
	images := newFakeImages()
	l := NewLocator(fakeMaps{text: selfMaps},
		WithImageOpener(images),
		WithCandidates([]string{"/system/lib64/libgame.so"}),
		WithDemangledNames(true),
	)

	addr, err := l.Lookup("Camera::get_main")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7f4007e6c098), addr.Value)
	assert.Equal(t, "/system/lib64/libgame.so", addr.Image)
}

func TestLocatorNeverOpensUnmappedCandidates(t *testing.T) {
	images := newFakeImages()
	l := NewLocator(fakeMaps{text: selfMaps},
		WithImageOpener(images),
		WithCandidates([]string{"/system/lib64/libnotloaded.so", "/system/lib64/libc.so"}),
	)

	_, err := l.Lookup("does_not_exist")
	require.ErrorIs(t, err, ErrSymbolNotFound)
	assert.NotContains(t, images.opened, "/system/lib64/libnotloaded.so")
	assert.Contains(t, images.opened, "/system/lib64/libc.so", "libc.so is mapped under another path")
}

func TestLocatorUnreadableMap(t *testing.T) {
	l := NewLocator(fakeMaps{err: errors.New("permission denied")}, WithImageOpener(newFakeImages()))
	_, err := l.Lookup("dlopen")
	require.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestLocatorCandidatesCopy(t *testing.T) {
	in := []string{"/a/libc.so"}
	l := NewLocator(fakeMaps{}, WithCandidates(in))
	in[0] = "changed"
	assert.Equal(t, []string{"/a/libc.so"}, l.candidates)
	assert.Equal(t, DefaultCandidates, NewLocator(fakeMaps{}).candidates)
}

func TestLoadOrder(t *testing.T) {
	assert.Nil(t, loadOrder(nil))
	assert.Equal(t, []string{"/bin/app"}, loadOrder([]string{"/bin/app"}))
	assert.Equal(t,
		[]string{"/bin/app", "/lib/libfirst.so", "/lib/libsecond.so", "/lib/libthird.so"},
		loadOrder([]string{"/bin/app", "/lib/libthird.so", "/lib/libsecond.so", "/lib/libfirst.so"}))
}

func TestLocatorInterposedSymbolFollowsLoadOrder(t *testing.T) {
	// libpreload.so was loaded before libc.so and therefore sits above it.
	const maps = `5a0000000000-5a0000001000 r-xp 00000000 fd:01 1 /data/local/tmp/remsym
7f2000000000-7f2000100000 r-xp 00000000 fd:01 2 /system/lib64/libc.so
7f3000000000-7f3000100000 r-xp 00000000 fd:01 3 /data/local/tmp/libpreload.so
`
	images := &fakeImages{files: map[string][]byte{
		"/system/lib64/libc.so":         elftest.Build(elftest.Options{}, elftest.Func("mmap", 0x5678)),
		"/data/local/tmp/libpreload.so": elftest.Build(elftest.Options{}, elftest.Func("mmap", 0x100)),
	}}
	l := NewLocator(fakeMaps{text: maps}, WithImageOpener(images), WithCandidates(nil))

	addr, err := l.Lookup("mmap")
	require.NoError(t, err)
	assert.Equal(t, "/data/local/tmp/libpreload.so", addr.Image)
	assert.Equal(t, uint64(0x7f3000000100), addr.Value)
}

func TestLocatorSkipsDeviceMappings(t *testing.T) {
	const maps = `7f1000000000-7f1000001000 rw-s 00000000 00:05 7 /dev/null
`
	l := NewLocator(fakeMaps{text: maps}, WithCandidates(nil))

	_, err := l.Lookup("dlopen")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestIsDynamicLinker(t *testing.T) {
	assert.True(t, isDynamicLinker("/system/bin/linker64"))
	assert.True(t, isDynamicLinker("/lib64/ld-linux-x86-64.so.2"))
	assert.False(t, isDynamicLinker("/system/lib64/libc.so"))
}
