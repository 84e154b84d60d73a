package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func TestSaveAtomic_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "test.json")

	err := SaveAtomic(path, NewJSONCodec(), &testState{Name: "alpha", Count: 7})
	require.NoError(t, err)

	var loaded testState

	err = Load(path, NewJSONCodec(), &loaded)
	require.NoError(t, err)

	assert.Equal(t, "alpha", loaded.Name)
	assert.Equal(t, int64(7), loaded.Count)
}

func TestSaveAtomic_NoTempResidue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	err := SaveAtomic(path, NewJSONCodec(), &testState{Name: "alpha"})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "test.json", entries[0].Name())
}

func TestSaveAtomic_EncodeFailureKeepsPrevious(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	err := SaveAtomic(path, NewJSONCodec(), &testState{Name: "first"})
	require.NoError(t, err)

	// Channels are not JSON-encodable.
	err = SaveAtomic(path, NewJSONCodec(), make(chan int))
	require.Error(t, err)

	var loaded testState

	err = Load(path, NewJSONCodec(), &loaded)
	require.NoError(t, err)
	assert.Equal(t, "first", loaded.Name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	var loaded testState

	err := Load(filepath.Join(t.TempDir(), "absent.json"), NewJSONCodec(), &loaded)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	var loaded testState

	err := Load(path, NewJSONCodec(), &loaded)
	assert.Error(t, err)
}

func TestPersister_RoundTrip(t *testing.T) {
	t.Parallel()

	p := NewPersister[testState](filepath.Join(t.TempDir(), "p.json"), NewJSONCodec())

	require.NoError(t, p.Save(&testState{Name: "beta", Count: 2}))

	loaded, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, &testState{Name: "beta", Count: 2}, loaded)
}
