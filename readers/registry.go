package readers

import (
	"errors"
	"fmt"
	"path/filepath"
)

var ErrUnsupported = errors.New("unsupported file type")

type Reader interface {
	CanRead(path string) bool
	ReadText(path string) (string, error)
	ReadBytes(name string, data []byte) (string, error)
}

// Registry dispatches to the first registered reader that accepts a file name.
type Registry struct {
	readers []Reader
}

func NewRegistry(readers ...Reader) *Registry {
	return &Registry{readers: readers}
}

// Default handles plain text and everything docconv understands.
func Default() *Registry {
	return NewRegistry(&TxtFileReader{}, &UniversalFileReader{})
}

func (r *Registry) CanRead(path string) bool {
	_, err := r.find(path)
	return err == nil
}

func (r *Registry) ReadText(path string) (string, error) {
	reader, err := r.find(path)
	if err != nil {
		return "", err
	}

	return reader.ReadText(path)
}

func (r *Registry) ReadBytes(name string, data []byte) (string, error) {
	reader, err := r.find(name)
	if err != nil {
		return "", err
	}

	return reader.ReadBytes(name, data)
}

func (r *Registry) find(path string) (Reader, error) {
	for _, reader := range r.readers {
		if reader.CanRead(path) {
			return reader, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}
