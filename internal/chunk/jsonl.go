package chunk

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// maxLineBytes bounds a single JSONL line; full articles fit well under it.
const maxLineBytes = 16 << 20

// forEachLine decodes each non-empty line of a JSONL file into a fresh T
// and calls fn with it.
func forEachLine[T any](path string, fn func(*T) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record T

		unmarshalErr := json.Unmarshal(line, &record)
		if unmarshalErr != nil {
			return fmt.Errorf("decode line: %w", unmarshalErr)
		}

		callErr := fn(&record)
		if callErr != nil {
			return callErr
		}
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return fmt.Errorf("scan input: %w", scanErr)
	}

	return nil
}

// lineWriter appends JSON lines to a buffered file, keeping a record count.
type lineWriter struct {
	file  *os.File
	buf   *bufio.Writer
	count int64
	bytes int64
}

func newLineWriter(path string) (*lineWriter, error) {
	mkdirErr := os.MkdirAll(filepath.Dir(path), 0o750)
	if mkdirErr != nil {
		return nil, fmt.Errorf("create output dir: %w", mkdirErr)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}

	return &lineWriter{file: file, buf: bufio.NewWriterSize(file, 64<<10)}, nil
}

func (w *lineWriter) write(record any) error {
	line, marshalErr := json.Marshal(record)
	if marshalErr != nil {
		return fmt.Errorf("encode record: %w", marshalErr)
	}

	line = append(line, '\n')

	_, writeErr := w.buf.Write(line)
	if writeErr != nil {
		return fmt.Errorf("write output: %w", writeErr)
	}

	w.count++
	w.bytes += int64(len(line))

	return nil
}

func (w *lineWriter) close() error {
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()

	if flushErr != nil {
		return fmt.Errorf("flush output: %w", flushErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close output: %w", closeErr)
	}

	return nil
}
