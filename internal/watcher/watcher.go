// Package watcher ingests batch files dropped into a directory. A file
// named *.v1 is parsed as line notation, *.csv as grid notation; a parsed
// batch is committed straight to Initial so a worker picks it up.
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/parser"
)

// DropWatcher monitors a drop directory for batch files
type DropWatcher struct {
	watcher  *fsnotify.Watcher
	store    parser.Store
	dir      string
	username string
	settle   time.Duration
}

// New creates a watcher for the given drop directory. Ingested batches
// are owned by username.
func New(store parser.Store, dir, username string) (*DropWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	return &DropWatcher{
		watcher:  w,
		store:    store,
		dir:      dir,
		username: username,
		settle:   500 * time.Millisecond, // let the writer finish the file
	}, nil
}

// Close stops the watcher
func (dw *DropWatcher) Close() error {
	return dw.watcher.Close()
}

// Run processes drop events until the context is canceled. Files present
// before startup are ingested first.
func (dw *DropWatcher) Run(ctx context.Context) error {
	entries, err := os.ReadDir(dw.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			dw.ingest(filepath.Join(dw.dir, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			time.Sleep(dw.settle)
			dw.ingest(event.Name)
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("watcher: %v", err)
		}
	}
}

// ingest parses one dropped file and commits it as a batch. Failures move
// the file into a failed/ subdirectory so they are visible, not retried.
func (dw *DropWatcher) ingest(path string) {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".v1" && ext != ".csv" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("watcher: reading %s: %v", name, err)
		return
	}

	batchName := strings.TrimSuffix(name, ext)
	var builder *parser.BatchBuilder
	if ext == ".csv" {
		builder, err = parser.NewGrid(batchName, dw.username, string(data))
		if err != nil {
			log.Printf("watcher: parsing %s: %v", name, err)
			dw.moveToFailed(path)
			return
		}
	} else {
		builder = parser.NewV1(batchName, dw.username, string(data))
	}

	if err := builder.Commit(dw.store); err != nil {
		log.Printf("watcher: committing %s: %v", name, err)
		dw.moveToFailed(path)
		return
	}
	log.Printf("watcher: created batch %d (%d commands) from %s",
		builder.Batch.ID, len(builder.Commands), name)
	if err := os.Remove(path); err != nil {
		log.Printf("watcher: removing %s: %v", name, err)
	}
}

func (dw *DropWatcher) moveToFailed(path string) {
	failedDir := filepath.Join(dw.dir, "failed")
	if err := os.MkdirAll(failedDir, 0755); err != nil {
		log.Printf("watcher: %v", err)
		return
	}
	if err := os.Rename(path, filepath.Join(failedDir, filepath.Base(path))); err != nil {
		log.Printf("watcher: %v", err)
	}
}
