// Package file provides a file-system persistence implementation. It is a
// single-process store: one mutex serializes every mutation, which is what
// makes queue claims atomic here. Durability comes from write-to-temp plus
// rename so a crash never leaves a half-written record.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/replaykit/replaykit/pkg/persistence"
)

// Persistence implements persistence.Persistence on a directory tree:
// flows/, runs/, events/ and queue/ each hold one JSON document per record
// (events/ holds one ordered log per run).
type Persistence struct {
	root string
	mu   sync.Mutex

	flowRepo  *FlowRepository
	runRepo   *RunRepository
	eventRepo *EventRepository
	queueRepo *QueueRepository
}

// NewPersistence creates a file persistence rooted at root. A "file://"
// prefix is stripped so database URLs can be passed straight through.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.flowRepo = &FlowRepository{store: p}
	p.runRepo = &RunRepository{store: p}
	p.eventRepo = &EventRepository{store: p}
	p.queueRepo = &QueueRepository{store: p}

	return p
}

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flowRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) EventRepository() persistence.EventRepository {
	return p.eventRepo
}

func (p *Persistence) QueueRepository() persistence.QueueRepository {
	return p.queueRepo
}

// HealthCheck verifies the root directory exists, creating it on first use.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return os.MkdirAll(p.root, 0o755)
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) path(parts ...string) string {
	return filepath.Join(append([]string{p.root}, parts...)...)
}

// readJSON loads one record. Missing files surface as os.ErrNotExist for the
// caller to translate into the repository's not-found sentinel.
func (p *Persistence) readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return nil
}

// writeJSON persists one record atomically via temp file and rename.
func (p *Persistence) writeJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// listJSON returns the record ids (file basenames) under a subdirectory.
func (p *Persistence) listJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(p.path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
