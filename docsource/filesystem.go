package docsource

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gamma-omg/rag-spo/domain"
	"github.com/gamma-omg/rag-spo/readers"
)

// Filesystem serves the readable files under a local folder. Document ids
// are slash separated paths relative to the root. The site id is ignored.
type Filesystem struct {
	root    string
	readers *readers.Registry
	log     *slog.Logger
}

func NewFilesystem(root string, reg *readers.Registry, log *slog.Logger) (*Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidConfiguration, abs)
	}

	return &Filesystem{root: abs, readers: reg, log: log}, nil
}

func (s *Filesystem) Root() string {
	return s.root
}

func (s *Filesystem) ListDocuments(ctx context.Context, siteID string) ([]domain.Document, error) {
	docs := []domain.Document{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		if !s.readers.CanRead(path) {
			s.log.Warn("unsupported file", slog.String("path", path))
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		id, err := s.ID(path)
		if err != nil {
			return err
		}

		docs = append(docs, s.document(id, path, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", s.root, err)
	}

	return docs, nil
}

func (s *Filesystem) GetContent(ctx context.Context, siteID, documentID string) (string, error) {
	path, err := s.path(documentID)
	if err != nil {
		return "", err
	}

	text, err := s.readers.ReadText(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", documentID, err)
	}

	return text, nil
}

func (s *Filesystem) GetMetadata(ctx context.Context, siteID, documentID string) (domain.Document, error) {
	path, err := s.path(documentID)
	if err != nil {
		return domain.Document{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrNotFound, documentID)
	}

	return s.document(documentID, path, info), nil
}

func (s *Filesystem) Download(ctx context.Context, documentID string) (io.ReadCloser, string, string, error) {
	path, err := s.path(documentID)
	if err != nil {
		return nil, "", "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %s", domain.ErrNotFound, documentID)
	}

	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}

	return f, ct, filepath.Base(path), nil
}

// CanRead reports whether a reader handles the file.
func (s *Filesystem) CanRead(path string) bool {
	return s.readers.CanRead(path)
}

// ID converts a path under the root into a document id.
func (s *Filesystem) ID(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside of %s", domain.ErrInvalidInput, path, s.root)
	}

	return filepath.ToSlash(rel), nil
}

func (s *Filesystem) path(documentID string) (string, error) {
	if documentID == "" || !filepath.IsLocal(filepath.FromSlash(documentID)) {
		return "", fmt.Errorf("%w: invalid document id %q", domain.ErrInvalidInput, documentID)
	}

	return filepath.Join(s.root, filepath.FromSlash(documentID)), nil
}

func (s *Filesystem) document(id, path string, info fs.FileInfo) domain.Document {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}

	return domain.Document{
		ID:           id,
		Name:         filepath.Base(path),
		WebURL:       u.String(),
		ModifiedDate: info.ModTime().UTC().Format(time.RFC3339),
		Author:       "Unknown",
		Size:         info.Size(),
	}
}
