// Package trigger reads connector commands from the JSON trigger file shared
// with the site supervisor.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/powermux/core/command"
	"github.com/kilianp07/powermux/core/logger"
	"github.com/kilianp07/powermux/core/model"
)

// Entry is the record of one connector in the trigger file.
type Entry struct {
	Action       string  `json:"action"`
	EVMaxVoltage float64 `json:"EVMaxVoltage"`
	EVMaxCurrent float64 `json:"EVMaxCurrent"`
}

// FileSource polls a trigger file keyed by connector name, for example
//
//	{"Connector3": {"action": "start", "EVMaxVoltage": 400, "EVMaxCurrent": 120}}
//
// and writes it back with the action of every consumed entry reset to
// "none".
type FileSource struct {
	path string
	log  logger.Logger
	now  func() time.Time

	mu     sync.Mutex
	polled map[string]polledEntry
}

type polledEntry struct {
	key   string
	entry Entry
}

// NewFileSource creates a source over path. The file may not exist yet.
func NewFileSource(path string, log logger.Logger) *FileSource {
	if log == nil {
		log = logger.Discard{}
	}
	return &FileSource{path: path, log: log, now: time.Now, polled: map[string]polledEntry{}}
}

// Path returns the trigger file location.
func (s *FileSource) Path() string { return s.path }

// Poll returns one command per entry whose action is not "none". A missing
// file yields no command; a malformed file is an error and nothing is
// returned. Keys that do not name a connector produce a command for
// connector 0 so the engine rejects it and the entry gets reset.
func (s *FileSource) Poll(context.Context) ([]model.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	received := s.now()
	s.polled = map[string]polledEntry{}
	var out []model.Command
	for key, e := range entries {
		if e.Action == "" || e.Action == string(model.ActionNone) {
			continue
		}
		c, ok := model.ParseConnector(key)
		if !ok {
			s.log.Warnf("trigger: unknown connector %q", key)
		}
		cmd := model.Command{
			ID:            uuid.NewString(),
			Connector:     c,
			Action:        model.Action(e.Action),
			TargetVoltage: e.EVMaxVoltage,
			TargetCurrent: e.EVMaxCurrent,
			Received:      received,
		}
		s.polled[cmd.ID] = polledEntry{key: key, entry: e}
		out = append(out, cmd)
	}
	command.SortBatch(out)
	return out, nil
}

// Consume resets the action of the entries behind cmds. Entries rewritten
// since the poll are left untouched.
func (s *FileSource) Consume(_ context.Context, cmds []model.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return err
	}
	modified := false
	for _, c := range cmds {
		p, ok := s.polled[c.ID]
		if !ok {
			continue
		}
		delete(s.polled, c.ID)
		cur, ok := entries[p.key]
		if !ok || cur != p.entry {
			continue
		}
		cur.Action = string(model.ActionNone)
		entries[p.key] = cur
		modified = true
	}
	if !modified {
		return nil
	}
	return s.write(entries)
}

// Submit records cmd in the trigger file, replacing any pending entry for
// the same connector.
func (s *FileSource) Submit(cmd model.Command) error {
	if !cmd.Connector.Valid() {
		return fmt.Errorf("invalid connector %d", cmd.Connector)
	}
	if _, err := model.ParseAction(string(cmd.Action)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if entries == nil {
		entries = map[string]Entry{}
	}
	entries[cmd.Connector.String()] = Entry{
		Action:       string(cmd.Action),
		EVMaxVoltage: cmd.TargetVoltage,
		EVMaxCurrent: cmd.TargetCurrent,
	}
	return s.write(entries)
}

func (s *FileSource) read() (map[string]Entry, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var entries map[string]Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("malformed trigger file %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *FileSource) write(entries map[string]Entry) error {
	b, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
