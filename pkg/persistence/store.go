// Package persistence provides the durable, versioned on-disk store for
// skills. Each skill owns a directory with its working files (skill.py,
// manifest.yaml, requirements.txt) and an append-only versions.json holding
// the full history. A root-level index.json maps each name to its current
// version and fingerprint reference; if the index is missing or corrupt it
// is re-derived from the directory contents.
//
// Every file write goes through a temp file and an atomic rename, so readers
// never observe a partially written version.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/autoskill-ai/autoskill/pkg/logger"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

const (
	codeFileName         = "skill.py"
	manifestFileName     = "manifest.yaml"
	requirementsFileName = "requirements.txt"
	versionsFileName     = "versions.json"
	indexFileName        = "index.json"
)

// manifest is the YAML shape of a skill's manifest.yaml.
type manifest struct {
	Name           string                 `yaml:"name"`
	Description    string                 `yaml:"description"`
	EntryPoint     string                 `yaml:"entry_point,omitempty"`
	Version        int                    `yaml:"version"`
	Status         string                 `yaml:"status"`
	Template       string                 `yaml:"template,omitempty"`
	IsolationLevel string                 `yaml:"isolation_level,omitempty"`
	Dependencies   []string               `yaml:"dependencies,omitempty"`
	Parameters     map[string]interface{} `yaml:"parameters,omitempty"`
	CreatedAt      time.Time              `yaml:"created_at"`
	UpdatedAt      time.Time              `yaml:"updated_at"`
}

// VersionRecord is one entry of a skill's append-only version history.
type VersionRecord struct {
	Version      int       `json:"version"`
	Code         string    `json:"code"`
	Manifest     string    `json:"manifest"`
	Requirements string    `json:"requirements,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// indexEntry maps a skill name to its current version and the fingerprint
// store it is referenced from.
type indexEntry struct {
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Store is the versioned skill store rooted at a directory. It tolerates
// concurrent writers to different names; per-name writes are serialized
// internally.
type Store struct {
	dir string

	indexMu sync.Mutex
	index   map[string]indexEntry

	nameMu sync.Mutex
	names  map[string]*sync.Mutex
}

// NewStore opens a store at dir, creating it if needed. A missing or corrupt
// index is rebuilt by scanning the skill directories.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create skills directory")
	}
	s := &Store{
		dir:   dir,
		index: make(map[string]indexEntry),
		names: make(map[string]*sync.Mutex),
	}

	data, err := os.ReadFile(s.indexPath())
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, &s.index); jsonErr != nil {
			logger.L.WithError(jsonErr).Warn("skill index corrupt, rebuilding from disk")
			if err := s.rebuildIndex(); err != nil {
				return nil, err
			}
		}
	case os.IsNotExist(err):
		if err := s.rebuildIndex(); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrap(err, "failed to read skill index")
	}
	return s, nil
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

func (s *Store) indexPath() string           { return filepath.Join(s.dir, indexFileName) }
func (s *Store) skillDir(name string) string { return filepath.Join(s.dir, name) }

// lockName returns the per-name mutex, creating it on first use.
func (s *Store) lockName(name string) *sync.Mutex {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	mu, ok := s.names[name]
	if !ok {
		mu = &sync.Mutex{}
		s.names[name] = mu
	}
	return mu
}

// rebuildIndex re-derives index.json by scanning skill directories. Called
// on first open and after index corruption.
func (s *Store) rebuildIndex() error {
	s.index = make(map[string]indexEntry)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap(err, "failed to scan skills directory")
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		m, err := s.readManifest(name)
		if err != nil {
			continue
		}
		s.index[name] = indexEntry{Version: m.Version, Fingerprint: name}
	}
	return s.persistIndexLocked()
}

// persistIndexLocked writes index.json atomically. Callers hold indexMu (or
// are in single-threaded construction).
func (s *Store) persistIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal skill index")
	}
	return atomicWrite(s.indexPath(), data)
}

func (s *Store) readManifest(name string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.skillDir(name), manifestFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest for skill %s", name)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest for skill %s", name)
	}
	return &m, nil
}

// Save persists a skill as a new version and returns the assigned version
// number. Versions are gapless from 1 per name. The version history is
// committed before the working files, and the index entry is written last.
func (s *Store) Save(sk *skilltypes.Skill, note string) (int, error) {
	mu := s.lockName(sk.Name)
	mu.Lock()
	defer mu.Unlock()

	s.indexMu.Lock()
	current := s.index[sk.Name].Version
	s.indexMu.Unlock()

	version := current + 1
	now := time.Now()
	if sk.CreatedAt.IsZero() {
		sk.CreatedAt = now
	}
	sk.UpdatedAt = now
	sk.Version = version
	if sk.Status == "" {
		sk.Status = skilltypes.StatusActive
	}

	manifestData, err := marshalManifest(sk)
	if err != nil {
		return 0, err
	}
	requirements := strings.Join(sk.Dependencies, "\n")
	if requirements != "" {
		requirements += "\n"
	}

	dir := s.skillDir(sk.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to create skill directory %s", sk.Name)
	}

	records, err := s.readVersions(sk.Name)
	if err != nil {
		return 0, err
	}
	records = append(records, VersionRecord{
		Version:      version,
		Code:         sk.Code,
		Manifest:     string(manifestData),
		Requirements: requirements,
		Note:         note,
		CreatedAt:    now,
	})
	if err := s.writeVersions(sk.Name, records); err != nil {
		return 0, err
	}

	if err := atomicWrite(filepath.Join(dir, codeFileName), []byte(sk.Code)); err != nil {
		return 0, skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to write code for skill %s", sk.Name)
	}
	if err := atomicWrite(filepath.Join(dir, manifestFileName), manifestData); err != nil {
		return 0, skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to write manifest for skill %s", sk.Name)
	}
	if requirements != "" {
		if err := atomicWrite(filepath.Join(dir, requirementsFileName), []byte(requirements)); err != nil {
			return 0, skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to write requirements for skill %s", sk.Name)
		}
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	s.index[sk.Name] = indexEntry{Version: version, Fingerprint: sk.Name}
	if err := s.persistIndexLocked(); err != nil {
		return 0, skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to update skill index")
	}
	return version, nil
}

// Load reads a skill at the given version; version 0 means latest.
func (s *Store) Load(name string, version int) (*skilltypes.Skill, error) {
	s.indexMu.Lock()
	entry, ok := s.index[name]
	s.indexMu.Unlock()
	if !ok {
		return nil, skilltypes.NewError(skilltypes.ErrSkillNotFound, "skill %q not found", name)
	}
	if version == 0 {
		version = entry.Version
	}

	records, err := s.readVersions(name)
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Version == version {
			return skillFromRecord(name, &records[i])
		}
	}
	return nil, skilltypes.NewError(skilltypes.ErrSkillNotFound, "skill %q has no version %d", name, version)
}

// Versions returns the full version history for a skill, oldest first.
func (s *Store) Versions(name string) ([]VersionRecord, error) {
	s.indexMu.Lock()
	_, ok := s.index[name]
	s.indexMu.Unlock()
	if !ok {
		return nil, skilltypes.NewError(skilltypes.ErrSkillNotFound, "skill %q not found", name)
	}
	return s.readVersions(name)
}

// CurrentVersion returns the current version for a name, or 0 if absent.
func (s *Store) CurrentVersion(name string) int {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return s.index[name].Version
}

// Restore re-saves the content of an old version as a new one, preserving
// the gapless monotonic version invariant.
func (s *Store) Restore(name string, version int) (*skilltypes.Skill, error) {
	old, err := s.Load(name, version)
	if err != nil {
		return nil, err
	}
	if _, err := s.Save(old, fmt.Sprintf("restored from version %d", version)); err != nil {
		return nil, err
	}
	return old, nil
}

// Delete removes a skill: all versions, working files, and the index entry.
func (s *Store) Delete(name string) error {
	mu := s.lockName(name)
	mu.Lock()
	defer mu.Unlock()

	s.indexMu.Lock()
	_, ok := s.index[name]
	if ok {
		delete(s.index, name)
		if err := s.persistIndexLocked(); err != nil {
			s.indexMu.Unlock()
			return skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to update skill index")
		}
	}
	s.indexMu.Unlock()
	if !ok {
		return skilltypes.NewError(skilltypes.ErrSkillNotFound, "skill %q not found", name)
	}

	if err := os.RemoveAll(s.skillDir(name)); err != nil {
		return skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to remove skill directory %s", name)
	}
	return nil
}

// List loads the latest version of every stored skill, sorted by name.
func (s *Store) List() ([]*skilltypes.Skill, error) {
	s.indexMu.Lock()
	names := make([]string, 0, len(s.index))
	for name := range s.index {
		names = append(names, name)
	}
	s.indexMu.Unlock()
	sort.Strings(names)

	skills := make([]*skilltypes.Skill, 0, len(names))
	for _, name := range names {
		sk, err := s.Load(name, 0)
		if err != nil {
			logger.L.WithError(err).WithField("skill", name).Warn("skipping unloadable skill")
			continue
		}
		skills = append(skills, sk)
	}
	return skills, nil
}

func (s *Store) readVersions(name string) ([]VersionRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.skillDir(name), versionsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to read version history for %s", name)
	}
	var records []VersionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, skilltypes.WrapError(skilltypes.ErrPersistence, err, "corrupt version history for %s", name)
	}
	return records, nil
}

func (s *Store) writeVersions(name string, records []VersionRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to marshal version history for %s", name)
	}
	if err := atomicWrite(filepath.Join(s.skillDir(name), versionsFileName), data); err != nil {
		return skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to write version history for %s", name)
	}
	return nil
}

func marshalManifest(sk *skilltypes.Skill) ([]byte, error) {
	m := manifest{
		Name:           sk.Name,
		Description:    sk.Description,
		EntryPoint:     sk.EntryPoint,
		Version:        sk.Version,
		Status:         string(sk.Status),
		Template:       sk.Template,
		IsolationLevel: sk.IsolationLevel,
		Dependencies:   sk.Dependencies,
		CreatedAt:      sk.CreatedAt,
		UpdatedAt:      sk.UpdatedAt,
	}
	if len(sk.Parameters) > 0 {
		if err := json.Unmarshal(sk.Parameters, &m.Parameters); err != nil {
			return nil, skilltypes.WrapError(skilltypes.ErrPersistence, err, "invalid parameters schema for skill %s", sk.Name)
		}
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return nil, skilltypes.WrapError(skilltypes.ErrPersistence, err, "failed to marshal manifest for skill %s", sk.Name)
	}
	return data, nil
}

func skillFromRecord(name string, record *VersionRecord) (*skilltypes.Skill, error) {
	var m manifest
	if err := yaml.Unmarshal([]byte(record.Manifest), &m); err != nil {
		return nil, skilltypes.WrapError(skilltypes.ErrPersistence, err, "corrupt manifest for skill %s version %d", name, record.Version)
	}

	sk := &skilltypes.Skill{
		Name:           name,
		Description:    m.Description,
		Code:           record.Code,
		EntryPoint:     m.EntryPoint,
		Version:        record.Version,
		Status:         skilltypes.Status(m.Status),
		Template:       m.Template,
		IsolationLevel: m.IsolationLevel,
		Dependencies:   m.Dependencies,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if sk.Status == "" {
		sk.Status = skilltypes.StatusActive
	}
	if m.Parameters != nil {
		params, err := json.Marshal(m.Parameters)
		if err != nil {
			return nil, skilltypes.WrapError(skilltypes.ErrPersistence, err, "invalid parameters for skill %s", name)
		}
		sk.Parameters = params
	}
	return sk, nil
}

// atomicWrite writes data to path via a temp file and rename.
func atomicWrite(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}
