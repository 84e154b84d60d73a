// Package bundle assembles the final distributable artifact: the filtered
// chunk file plus a manifest describing it.
package bundle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wikistream/wikistream/internal/stage"
	"github.com/wikistream/wikistream/pkg/persist"
)

// ChunksName is the bundled chunk file name.
const ChunksName = "chunks.jsonl"

// ManifestName is the bundle manifest file name.
const ManifestName = "manifest.json"

// Manifest describes a finished bundle.
type Manifest struct {
	CreatedAt  time.Time `json:"created_at"`
	SourceFile string    `json:"source_file"`
	ChunkCount int64     `json:"chunk_count"`
	Bytes      int64     `json:"bytes"`
}

// Stage copies the filtered chunks into the bundle directory and writes the
// manifest.
type Stage struct {
	In  string
	Dir string
	Log *slog.Logger
}

// Name implements stage.Stage.
func (s *Stage) Name() string {
	return "bundle"
}

// InputHash implements stage.Stage.
func (s *Stage) InputHash() (string, error) {
	stamp, err := stage.FileStamp(s.In)
	if err != nil {
		return "", err
	}

	return stage.Fingerprint(stamp, s.Dir), nil
}

// OutputFiles implements stage.Stage.
func (s *Stage) OutputFiles() []string {
	return []string{filepath.Join(s.Dir, ChunksName), filepath.Join(s.Dir, ManifestName)}
}

// Run implements stage.Stage.
func (s *Stage) Run(ctx context.Context) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	mkdirErr := os.MkdirAll(s.Dir, 0o750)
	if mkdirErr != nil {
		return fmt.Errorf("create bundle dir: %w", mkdirErr)
	}

	count, bytes, copyErr := s.copyChunks()
	if copyErr != nil {
		return copyErr
	}

	manifest := Manifest{
		CreatedAt:  time.Now().UTC(),
		SourceFile: filepath.Base(s.In),
		ChunkCount: count,
		Bytes:      bytes,
	}

	saveErr := persist.SaveAtomic(filepath.Join(s.Dir, ManifestName), persist.NewJSONCodec(), &manifest)
	if saveErr != nil {
		return fmt.Errorf("write manifest: %w", saveErr)
	}

	if s.Log != nil {
		s.Log.Info("bundle: complete", "chunks", count, "bytes", bytes, "dir", s.Dir)
	}

	return nil
}

// copyChunks streams the input into the bundle, counting lines as it goes.
func (s *Stage) copyChunks() (int64, int64, error) {
	in, err := os.Open(s.In)
	if err != nil {
		return 0, 0, fmt.Errorf("open chunks: %w", err)
	}
	defer in.Close()

	out, createErr := os.Create(filepath.Join(s.Dir, ChunksName))
	if createErr != nil {
		return 0, 0, fmt.Errorf("create bundle chunks: %w", createErr)
	}

	var (
		count int64
		bytes int64
	)

	writer := bufio.NewWriterSize(out, 64<<10)
	reader := bufio.NewReaderSize(in, 64<<10)

	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			_, writeErr := writer.Write(line)
			if writeErr != nil {
				out.Close()

				return 0, 0, fmt.Errorf("write bundle chunks: %w", writeErr)
			}

			count++
			bytes += int64(len(line))
		}

		if readErr == io.EOF {
			break
		}

		if readErr != nil {
			out.Close()

			return 0, 0, fmt.Errorf("read chunks: %w", readErr)
		}
	}

	flushErr := writer.Flush()
	closeErr := out.Close()

	if flushErr != nil {
		return 0, 0, fmt.Errorf("flush bundle chunks: %w", flushErr)
	}

	if closeErr != nil {
		return 0, 0, fmt.Errorf("close bundle chunks: %w", closeErr)
	}

	return count, bytes, nil
}
