package chunk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wikistream/wikistream/internal/stage"
	"github.com/wikistream/wikistream/internal/wikixml"
)

// Stage cuts parsed articles into overlapping chunks.
type Stage struct {
	In        string
	Out       string
	MaxTokens int
	Overlap   int
	Log       *slog.Logger
}

// Name implements stage.Stage.
func (s *Stage) Name() string {
	return "chunk"
}

// InputHash implements stage.Stage.
func (s *Stage) InputHash() (string, error) {
	stamp, err := stage.FileStamp(s.In)
	if err != nil {
		return "", err
	}

	return stage.Fingerprint(stamp, fmt.Sprintf("max=%d overlap=%d", s.MaxTokens, s.Overlap)), nil
}

// OutputFiles implements stage.Stage.
func (s *Stage) OutputFiles() []string {
	return []string{s.Out}
}

// Run implements stage.Stage.
func (s *Stage) Run(ctx context.Context) error {
	writer, err := newLineWriter(s.Out)
	if err != nil {
		return err
	}

	var pages int64

	walkErr := forEachLine(s.In, func(record *wikixml.Record) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		pages++

		for _, c := range Split(record.ID, record.Title, record.Text, s.MaxTokens, s.Overlap) {
			writeErr := writer.write(c)
			if writeErr != nil {
				return writeErr
			}
		}

		return nil
	})
	if walkErr != nil {
		writer.close()

		return walkErr
	}

	closeErr := writer.close()
	if closeErr != nil {
		return closeErr
	}

	s.logger().Info("chunk: complete", "pages", pages, "chunks", writer.count)

	return nil
}

func (s *Stage) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}

	return slog.Default()
}
