// Package yamlfile stores each session layout as a YAML document in a directory.
//
// A layout file looks like:
//
//	session: lab
//	groups:
//	  - id: bench
//	    primary: scope1
//	    secondaries: [scope2, scope3]
//	    filters: [fft]
//	    default: true
package yamlfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/store"
	"gopkg.in/yaml.v2"
)

var sessionNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// document is the on-disk form of one session layout.
type document struct {
	Session triggersync.SessionName   `yaml:"session"`
	Groups  []triggersync.GroupRecord `yaml:"groups"`
}

// Store keeps one YAML file per session in a directory.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// Compile-time check that Store implements GroupStore.
var _ store.GroupStore = (*Store)(nil)

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create layout directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the file that holds the layout of session.
func (s *Store) Path(session triggersync.SessionName) (string, error) {
	if !sessionNameRegex.MatchString(string(session)) {
		return "", fmt.Errorf("session name %q cannot be used as a file name", session)
	}
	return filepath.Join(s.dir, string(session)+".yaml"), nil
}

// SaveGroups replaces the layout file of a session. An empty layout removes the file.
func (s *Store) SaveGroups(ctx context.Context, session triggersync.SessionName, groups []triggersync.GroupRecord) error {
	if err := store.Validate(groups); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(session, groups)
}

// ListGroups returns the layout of a session in saved order.
func (s *Store) ListGroups(ctx context.Context, session triggersync.SessionName) ([]triggersync.GroupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups, err := s.read(session)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []triggersync.GroupRecord{}
	}
	return groups, nil
}

// GetGroup returns one group of a session.
// Returns store.ErrGroupNotFound if the group does not exist.
func (s *Store) GetGroup(ctx context.Context, session triggersync.SessionName, id string) (triggersync.GroupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups, err := s.read(session)
	if err != nil {
		return triggersync.GroupRecord{}, err
	}
	for _, g := range groups {
		if g.ID == id {
			return g, nil
		}
	}
	return triggersync.GroupRecord{}, store.ErrGroupNotFound
}

// DeleteGroup removes one group of a session.
// Returns store.ErrGroupNotFound if the group does not exist.
func (s *Store) DeleteGroup(ctx context.Context, session triggersync.SessionName, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups, err := s.read(session)
	if err != nil {
		return err
	}
	for i, g := range groups {
		if g.ID == id {
			return s.write(session, append(groups[:i:i], groups[i+1:]...))
		}
	}
	return store.ErrGroupNotFound
}

// read loads a layout. A missing file is an empty layout. Callers hold s.mu.
func (s *Store) read(session triggersync.SessionName) ([]triggersync.GroupRecord, error) {
	path, err := s.Path(session)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read layout file: %w", err)
	}

	var doc document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse layout file %s: %w", path, err)
	}
	return doc.Groups, nil
}

// write stores a layout through a temporary file and rename. Callers hold s.mu.
func (s *Store) write(session triggersync.SessionName, groups []triggersync.GroupRecord) error {
	path, err := s.Path(session)
	if err != nil {
		return err
	}

	if len(groups) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove layout file: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(document{Session: session, Groups: groups})
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+string(session)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary layout file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write layout file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write layout file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace layout file: %w", err)
	}
	return nil
}
