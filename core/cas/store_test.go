package cas

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestPutAndGet(t *testing.T) {
	s := openStore(t)
	data := []byte("\\id GEN\n\\c 1\n\\p\n\\v 1 In the beginning\n")

	b, err := s.Put(data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	sum := sha256.Sum256(data)
	if b.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("sha256 = %s", b.SHA256)
	}
	b3 := blake3.Sum256(data)
	if b.BLAKE3 != hex.EncodeToString(b3[:]) {
		t.Errorf("blake3 = %s", b.BLAKE3)
	}
	if b.Size != int64(len(data)) {
		t.Errorf("size = %d", b.Size)
	}

	got, err := s.Get(b.SHA256)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get returned %q", got)
	}
	if !s.Has(b.SHA256) {
		t.Error("Has = false after Put")
	}

	want := filepath.Join(s.Root(), "blobs", "sha256", b.SHA256[:2], b.SHA256)
	if _, err := os.Stat(want); err != nil {
		t.Errorf("blob not at %s: %v", want, err)
	}
}

func TestPutDeduplicates(t *testing.T) {
	s := openStore(t)
	data := []byte("same content")

	first, err := s.Put(data)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Put(data)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("second Put = %+v, want %+v", second, first)
	}

	ents, err := os.ReadDir(filepath.Join(s.Root(), "blobs", "sha256", first.SHA256[:2]))
	if err != nil {
		t.Fatal(err)
	}
	if len(ents) != 1 {
		t.Errorf("%d files in prefix directory, want 1", len(ents))
	}
}

func TestGetByBlake3(t *testing.T) {
	s := openStore(t)
	data := []byte("\\v 2 The earth was empty")
	b, err := s.Put(data)
	if err != nil {
		t.Fatal(err)
	}

	sha, err := s.Resolve(b.BLAKE3)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sha != b.SHA256 {
		t.Errorf("Resolve = %s, want %s", sha, b.SHA256)
	}
	got, err := s.GetByBlake3(b.BLAKE3)
	if err != nil {
		t.Fatalf("GetByBlake3: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("GetByBlake3 returned %q", got)
	}
}

func TestGetErrors(t *testing.T) {
	s := openStore(t)
	missing := Hash([]byte("never stored"))

	tests := []struct {
		name   string
		call   func() error
		target error
	}{
		{"missing blob", func() error { _, err := s.Get(missing); return err }, errors.ErrNotFound},
		{"bad digest", func() error { _, err := s.Get("xyz"); return err }, errors.ErrInvalidInput},
		{"uppercase digest", func() error { _, err := s.Get(Hash(nil)[:63] + "A"); return err }, errors.ErrInvalidInput},
		{"missing pointer", func() error { _, err := s.Resolve(Blake3Hash([]byte("x"))); return err }, errors.ErrNotFound},
		{"bad blake3", func() error { _, err := s.GetByBlake3("../etc"); return err }, errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.target) {
				t.Errorf("err = %v, want %v", err, tt.target)
			}
		})
	}
	if s.Has("short") {
		t.Error("Has accepted a malformed digest")
	}
}

func TestGetDetectsCorruption(t *testing.T) {
	s := openStore(t)
	b, err := s.Put([]byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.blobPath(b.SHA256), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	var ie *errors.InternalError
	if _, err := s.Get(b.SHA256); !errors.As(err, &ie) {
		t.Errorf("err = %v, want an InternalError", err)
	}
}

func TestPutRenameFailure(t *testing.T) {
	s := openStore(t)
	orig := osRename
	defer func() { osRename = orig }()
	osRename = func(string, string) error { return os.ErrPermission }

	var ioErr *errors.IOError
	if _, err := s.Put([]byte("data")); !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want an IOError", err)
	}
	prefix := filepath.Join(s.Root(), "blobs", "sha256", Hash([]byte("data"))[:2])
	ents, _ := os.ReadDir(prefix)
	if len(ents) != 0 {
		t.Errorf("temp files left behind: %v", ents)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	s := openStore(t)
	m := &Manifest{RunID: "0b6f3c1e-run", Created: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	in := []byte("\\id GEN\n\\v1 a\n")
	if _, err := m.Add(s, "GEN.usfm", RoleInput, in); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(s, "GEN.usfm", RoleRepaired, []byte("\\id GEN\n\\v 1 a\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(s, "report.txt", RoleReport, []byte("Errors: 0\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteManifest(m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	got, err := s.ReadManifest(m.RunID)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(got.Entries) != 3 || !got.Created.Equal(m.Created) {
		t.Fatalf("manifest = %+v", got)
	}
	e, ok := got.Find("GEN.usfm", RoleInput)
	if !ok {
		t.Fatal("input entry missing")
	}
	data, err := s.Get(e.SHA256)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, in) {
		t.Errorf("input blob = %q", data)
	}

	runs, err := s.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0] != m.RunID {
		t.Errorf("Runs() = %v", runs)
	}
}

func TestManifestRejectsBadRunID(t *testing.T) {
	s := openStore(t)
	for _, id := range []string{"", "../escape", "-flag"} {
		if _, err := s.WriteManifest(&Manifest{RunID: id}); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("WriteManifest(%q) = %v", id, err)
		}
	}
	if _, err := s.ReadManifest("nope"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("ReadManifest(nope) = %v", err)
	}
}
