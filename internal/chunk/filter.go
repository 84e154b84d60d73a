package chunk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wikistream/wikistream/internal/stage"
)

// FilterStage drops chunks whose text length falls outside configured
// bounds. A zero MaxLength disables the upper bound.
type FilterStage struct {
	In        string
	Out       string
	MinLength int
	MaxLength int
	Log       *slog.Logger
}

// Name implements stage.Stage.
func (s *FilterStage) Name() string {
	return "filter"
}

// InputHash implements stage.Stage.
func (s *FilterStage) InputHash() (string, error) {
	stamp, err := stage.FileStamp(s.In)
	if err != nil {
		return "", err
	}

	return stage.Fingerprint(stamp, fmt.Sprintf("min=%d max=%d", s.MinLength, s.MaxLength)), nil
}

// OutputFiles implements stage.Stage.
func (s *FilterStage) OutputFiles() []string {
	return []string{s.Out}
}

// Run implements stage.Stage.
func (s *FilterStage) Run(ctx context.Context) error {
	writer, err := newLineWriter(s.Out)
	if err != nil {
		return err
	}

	var dropped int64

	walkErr := forEachLine(s.In, func(c *Chunk) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !s.keep(c) {
			dropped++

			return nil
		}

		return writer.write(c)
	})
	if walkErr != nil {
		writer.close()

		return walkErr
	}

	closeErr := writer.close()
	if closeErr != nil {
		return closeErr
	}

	s.logger().Info("filter: complete", "kept", writer.count, "dropped", dropped)

	return nil
}

func (s *FilterStage) keep(c *Chunk) bool {
	if len(c.Text) < s.MinLength {
		return false
	}

	if s.MaxLength > 0 && len(c.Text) > s.MaxLength {
		return false
	}

	return true
}

func (s *FilterStage) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}

	return slog.Default()
}
