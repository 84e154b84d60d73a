package bundle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikistream/wikistream/pkg/persist"
)

func TestStage_Run(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "filtered.jsonl")
	content := "{\"chunk_id\":\"1-0\"}\n{\"chunk_id\":\"1-1\"}\n{\"chunk_id\":\"2-0\"}\n"
	require.NoError(t, os.WriteFile(in, []byte(content), 0o600))

	bundleDir := filepath.Join(dir, "bundle")
	st := &Stage{In: in, Dir: bundleDir}
	require.Equal(t, "bundle", st.Name())

	require.NoError(t, st.Run(context.Background()))

	copied, err := os.ReadFile(filepath.Join(bundleDir, ChunksName))
	require.NoError(t, err)
	assert.Equal(t, content, string(copied))

	var manifest Manifest

	err = persist.Load(filepath.Join(bundleDir, ManifestName), persist.NewJSONCodec(), &manifest)
	require.NoError(t, err)
	assert.Equal(t, int64(3), manifest.ChunkCount)
	assert.Equal(t, int64(len(content)), manifest.Bytes)
	assert.Equal(t, "filtered.jsonl", manifest.SourceFile)
	assert.False(t, manifest.CreatedAt.IsZero())
}

func TestStage_Run_EmptyInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "filtered.jsonl")
	require.NoError(t, os.WriteFile(in, nil, 0o600))

	st := &Stage{In: in, Dir: filepath.Join(dir, "bundle")}
	require.NoError(t, st.Run(context.Background()))

	var manifest Manifest

	err := persist.Load(filepath.Join(dir, "bundle", ManifestName), persist.NewJSONCodec(), &manifest)
	require.NoError(t, err)
	assert.Zero(t, manifest.ChunkCount)
}

func TestStage_Run_MissingInput(t *testing.T) {
	t.Parallel()

	st := &Stage{In: filepath.Join(t.TempDir(), "absent.jsonl"), Dir: filepath.Join(t.TempDir(), "bundle")}

	assert.Error(t, st.Run(context.Background()))
}

func TestStage_OutputFiles(t *testing.T) {
	t.Parallel()

	st := &Stage{In: "in.jsonl", Dir: "bundle"}

	assert.Equal(t, []string{
		filepath.Join("bundle", ChunksName),
		filepath.Join("bundle", ManifestName),
	}, st.OutputFiles())
}
