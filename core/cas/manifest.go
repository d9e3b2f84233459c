package cas

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/internal/validation"
)

// Roles of the files recorded in a manifest.
const (
	RoleInput    = "input"
	RoleRepaired = "repaired"
	RoleReport   = "report"
	RoleExtract  = "extract"
)

// Entry is one file of a run.
type Entry struct {
	Name string `json:"name"`
	Role string `json:"role"`
	Blob
}

// Manifest lists the files a check run read and wrote.
type Manifest struct {
	RunID   string    `json:"run_id"`
	Created time.Time `json:"created"`
	Entries []Entry   `json:"entries"`
}

// Add stores data and records it under name and role.
func (m *Manifest) Add(s *Store, name, role string, data []byte) (Entry, error) {
	b, err := s.Put(data)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Name: name, Role: role, Blob: b}
	m.Entries = append(m.Entries, e)
	return e, nil
}

// Find returns the entry for name and role.
func (m *Manifest) Find(name, role string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Name == name && e.Role == role {
			return e, true
		}
	}
	return Entry{}, false
}

// WriteManifest stores m as a blob and points manifests/<run id>.json at it.
func (s *Store) WriteManifest(m *Manifest) (Blob, error) {
	if err := validation.ValidateFilename(m.RunID); err != nil {
		return Blob{}, errors.NewValidation("run id", err.Error())
	}
	sort.SliceStable(m.Entries, func(i, j int) bool {
		if m.Entries[i].Name != m.Entries[j].Name {
			return m.Entries[i].Name < m.Entries[j].Name
		}
		return m.Entries[i].Role < m.Entries[j].Role
	})
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Blob{}, errors.Wrap(err, "marshal manifest")
	}
	b, err := s.Put(raw)
	if err != nil {
		return Blob{}, err
	}
	ptr, err := json.Marshal(blake3Pointer{SHA256: b.SHA256})
	if err != nil {
		return Blob{}, errors.Wrap(err, "marshal manifest pointer")
	}
	if err := writeAtomic(s.manifestPath(m.RunID), ptr); err != nil {
		return Blob{}, err
	}
	return b, nil
}

// ReadManifest loads the manifest of a run.
func (s *Store) ReadManifest(runID string) (*Manifest, error) {
	if err := validation.ValidateFilename(runID); err != nil {
		return nil, errors.NewValidation("run id", err.Error())
	}
	p := s.manifestPath(runID)
	raw, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound("run", runID)
	}
	if err != nil {
		return nil, errors.NewIO("read", p, err)
	}
	var ptr blake3Pointer
	if err := json.Unmarshal(raw, &ptr); err != nil {
		return nil, errors.NewParse("json", p, err.Error())
	}
	data, err := s.Get(ptr.SHA256)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewParse("json", ptr.SHA256, err.Error())
	}
	return &m, nil
}

// Runs lists the run ids with a manifest, sorted.
func (s *Store) Runs() ([]string, error) {
	dir := filepath.Join(s.root, "manifests")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewIO("readdir", dir, err)
	}
	var out []string
	for _, e := range ents {
		if name := e.Name(); !e.IsDir() && filepath.Ext(name) == ".json" {
			out = append(out, name[:len(name)-len(".json")])
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) manifestPath(runID string) string {
	return filepath.Join(s.root, "manifests", runID+".json")
}
