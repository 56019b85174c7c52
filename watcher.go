package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gamma-omg/rag-spo/docsource"
	"github.com/gamma-omg/rag-spo/domain"
)

type fileIndexer interface {
	Reindex(ctx context.Context, documentID string) (domain.IndexResult, error)
	Forget(ctx context.Context, documentID string) error
	IndexedDocuments(ctx context.Context) ([]string, error)
}

// Watcher keeps the vector store in sync with a local folder. Bursts of
// events for one file are merged and the file's state is read once the
// burst is over.
type Watcher struct {
	log              *slog.Logger
	folder           *docsource.Filesystem
	indexer          fileIndexer
	mergeEventsDelay time.Duration
}

func NewWatcher(log *slog.Logger, folder *docsource.Filesystem, indexer fileIndexer, mergeEventsDelay time.Duration) *Watcher {
	return &Watcher{
		log:              log,
		folder:           folder,
		indexer:          indexer,
		mergeEventsDelay: mergeEventsDelay,
	}
}

// Sync replaces the stored chunks of every readable file in the folder and
// forgets documents whose files are gone.
func (w *Watcher) Sync(ctx context.Context) error {
	docs, err := w.folder.ListDocuments(ctx, "")
	if err != nil {
		return err
	}

	if err := w.indexNewDocuments(ctx, docs); err != nil {
		return err
	}

	return w.forgetRemovedDocuments(ctx, docs)
}

func (w *Watcher) indexNewDocuments(ctx context.Context, docs []domain.Document) error {
	indexed := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := w.indexer.Reindex(ctx, doc.ID); err != nil {
			w.log.Error("failed to index document", slog.String("document_id", doc.ID), slog.Any("err", err))
			continue
		}
		indexed++
	}

	w.log.Info("folder synced", slog.String("root", w.folder.Root()), slog.Int("documents", indexed))
	return nil
}

func (w *Watcher) forgetRemovedDocuments(ctx context.Context, docs []domain.Document) error {
	onDisk := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		onDisk[doc.ID] = struct{}{}
	}

	stored, err := w.indexer.IndexedDocuments(ctx)
	if err != nil {
		return err
	}

	for _, id := range stored {
		if _, ok := onDisk[id]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := w.indexer.Forget(ctx, id); err != nil {
			w.log.Error("failed to forget document", slog.String("document_id", id), slog.Any("err", err))
			continue
		}
		w.log.Info("removed file forgotten", slog.String("document_id", id))
	}

	return nil
}

// Watch starts following the folder and returns once every directory is
// watched. Events are handled in the background until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := w.addDirs(watcher, w.folder.Root()); err != nil {
		watcher.Close()
		return err
	}

	go w.loop(ctx, watcher)
	return nil
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	pending := make(map[string]*time.Timer)
	fire := make(chan string)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", slog.Any("err", err))
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}

			path := ev.Name
			if t, ok := pending[path]; ok {
				t.Reset(w.mergeEventsDelay)
				continue
			}
			pending[path] = time.AfterFunc(w.mergeEventsDelay, func() {
				select {
				case fire <- path:
				case <-ctx.Done():
				}
			})
		case path := <-fire:
			delete(pending, path)
			w.apply(ctx, watcher, path)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		w.forget(ctx, path)
		return
	}
	if err != nil {
		w.log.Error("failed to stat file", slog.String("path", path), slog.Any("err", err))
		return
	}

	if info.IsDir() {
		if err := w.addDirs(watcher, path); err != nil {
			w.log.Error("failed to watch directory", slog.String("path", path), slog.Any("err", err))
		}
		w.indexDir(ctx, path)
		return
	}

	w.reindex(ctx, path)
}

func (w *Watcher) reindex(ctx context.Context, path string) {
	if !w.folder.CanRead(path) {
		w.log.Warn("unsupported file", slog.String("path", path))
		return
	}

	id, err := w.folder.ID(path)
	if err != nil {
		w.log.Error("failed to resolve document id", slog.String("path", path), slog.Any("err", err))
		return
	}

	res, err := w.indexer.Reindex(ctx, id)
	if err != nil {
		w.log.Error("failed to index document", slog.String("document_id", id), slog.Any("err", err))
		return
	}

	w.log.Info("document reindexed", slog.String("document_id", id), slog.Int("chunks", res.ChunksIndexed))
}

// forget drops the points of a removed file. A removed directory is
// reported as a single path, so its files cannot be told apart here.
func (w *Watcher) forget(ctx context.Context, path string) {
	if !w.folder.CanRead(path) {
		return
	}

	id, err := w.folder.ID(path)
	if err != nil {
		w.log.Error("failed to resolve document id", slog.String("path", path), slog.Any("err", err))
		return
	}

	if err := w.indexer.Forget(ctx, id); err != nil {
		w.log.Error("failed to forget document", slog.String("document_id", id), slog.Any("err", err))
	}
}

func (w *Watcher) indexDir(ctx context.Context, dir string) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			w.reindex(ctx, path)
		}
		return nil
	})
	if err != nil {
		w.log.Error("failed to index directory", slog.String("path", dir), slog.Any("err", err))
	}
}

func (w *Watcher) addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
