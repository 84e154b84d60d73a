package persist

import (
	"fmt"
	"os"
	"path/filepath"
)

// Directory permissions for state directories.
const dirPerm = 0o750

// SaveAtomic writes state to path atomically: encode to a temporary file in
// the same directory, then rename over the final path. The temporary file
// is removed on every failure path, leaving any previously committed file
// untouched.
func SaveAtomic(path string, codec Codec, state any) error {
	dir := filepath.Dir(path)

	mkdirErr := os.MkdirAll(dir, dirPerm)
	if mkdirErr != nil {
		return fmt.Errorf("create state dir: %w", mkdirErr)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	encodeErr := codec.Encode(tmp, state)
	if encodeErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("encode state: %w", encodeErr)
	}

	closeErr := tmp.Close()
	if closeErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close temp state file: %w", closeErr)
	}

	renameErr := os.Rename(tmp.Name(), path)
	if renameErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("commit state file: %w", renameErr)
	}

	return nil
}

// Load decodes state from path. The state parameter must be a pointer to
// the target struct.
func Load(path string, codec Codec, state any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	decodeErr := codec.Decode(file, state)
	if decodeErr != nil {
		return fmt.Errorf("decode state: %w", decodeErr)
	}

	return nil
}

// Persister handles atomic I/O for a specific state type using a Codec.
type Persister[T any] struct {
	path  string
	codec Codec
}

// NewPersister creates a persister bound to the given path and codec.
func NewPersister[T any](path string, codec Codec) *Persister[T] {
	return &Persister[T]{
		path:  path,
		codec: codec,
	}
}

// Save atomically writes the state.
func (p *Persister[T]) Save(state *T) error {
	return SaveAtomic(p.path, p.codec, state)
}

// Load restores the state. Returns the decoded value.
func (p *Persister[T]) Load() (*T, error) {
	var state T

	err := Load(p.path, p.codec, &state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}
