// Package snapshot stores and loads state captures: the four JSON files read
// by the site supervisor and the snapshot history.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kilianp07/powermux/core/model"
	coresnap "github.com/kilianp07/powermux/core/snapshot"
	"github.com/kilianp07/powermux/core/state"
	"github.com/kilianp07/powermux/infra/logger"
)

// File names written by FileExporter and read by Loader.
const (
	ConnectorsFile       = "connectors.json"
	ModulesFile          = "modules.json"
	SwitchesFile         = "mux.json"
	ConnectorModulesFile = "connector_modules.json"
)

// FileExporter writes every snapshot to four JSON files in a directory.
// Files are replaced atomically so readers never see a partial write.
type FileExporter struct {
	dir string
	mu  sync.Mutex
}

// NewFileExporter creates dir if needed.
func NewFileExporter(dir string) (*FileExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot dir: %w", err)
	}
	return &FileExporter{dir: dir}, nil
}

// Dir returns the export directory.
func (e *FileExporter) Dir() string { return e.dir }

// Publish writes the four files.
func (e *FileExporter) Publish(_ context.Context, s coresnap.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	conns := make(map[string]model.Connector, len(s.Connectors))
	for name, v := range s.Connectors {
		conns[name] = v.Connector
	}
	return errors.Join(
		writeJSON(filepath.Join(e.dir, ConnectorsFile), conns),
		writeJSON(filepath.Join(e.dir, ModulesFile), s.Modules),
		writeJSON(filepath.Join(e.dir, SwitchesFile), s.Switches),
		writeJSON(filepath.Join(e.dir, ConnectorModulesFile), s.Assignments),
	)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Loader restores state from a directory written by FileExporter.
type Loader struct {
	dir string
	log logger.Logger
}

// NewLoader reads captures from dir.
func NewLoader(dir string, log logger.Logger) *Loader {
	if log == nil {
		log = logger.New("snapshot-loader")
	}
	return &Loader{dir: dir, log: log}
}

// Read decodes the connector, module and switch files into a snapshot.
// The switch file is optional.
func (l *Loader) Read() (coresnap.Snapshot, error) {
	var s coresnap.Snapshot
	var conns map[string]model.Connector
	if err := readJSON(filepath.Join(l.dir, ConnectorsFile), &conns); err != nil {
		return s, err
	}
	if err := readJSON(filepath.Join(l.dir, ModulesFile), &s.Modules); err != nil {
		return s, err
	}
	err := readJSON(filepath.Join(l.dir, SwitchesFile), &s.Switches)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return s, err
	}
	s.Kind = coresnap.KindRestore
	s.Connectors = make(map[string]coresnap.ConnectorView, len(conns))
	for name, c := range conns {
		s.Connectors[name] = coresnap.ConnectorView{Connector: c}
	}
	return s, nil
}

// Load reads the directory and applies it to st. A module list of the wrong
// length fails the load and leaves st untouched; missing connectors are
// logged and skipped.
func (l *Loader) Load(st *state.SystemState) error {
	s, err := l.Read()
	if err != nil {
		return err
	}
	skipped, err := coresnap.Restore(st, s)
	if err != nil {
		return fmt.Errorf("load %s: %w", l.dir, err)
	}
	for _, name := range skipped {
		l.log.Warnf("%s missing from %s, keeping defaults", name, ConnectorsFile)
	}
	l.log.Infof("state restored from %s", l.dir)
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
