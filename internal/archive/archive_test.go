package archive

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/internal/validation"
)

func createTestTarGz(t *testing.T, dir string, members map[string]string) string {
	t.Helper()
	p := filepath.Join(dir, "project.tar.gz")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	for name, content := range members {
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write content: %v", err)
		}
	}
	tw.Close()
	gw.Close()
	return p
}

func TestReadUSFMFromTarGz(t *testing.T) {
	dir := t.TempDir()
	p := createTestTarGz(t, dir, map[string]string{
		"project/02EXO.SFM":  "\\id EXO\n",
		"project/01GEN.usfm": "\\id GEN\n",
		"project/notes.txt":  "not usfm",
		"../escape.usfm":     "\\id MAT\n",
		"project/bad.usfm":   "\\id MRK\x00\n",
	})

	var skipped []string
	files, err := ReadUSFM(p, func(name string, err error) { skipped = append(skipped, name) })
	if err != nil {
		t.Fatalf("ReadUSFM: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %v", len(files), files)
	}
	if files[0].Name != "project/01GEN.usfm" || files[1].Name != "project/02EXO.SFM" {
		t.Errorf("names = %s, %s", files[0].Name, files[1].Name)
	}
	if string(files[0].Data) != "\\id GEN\n" {
		t.Errorf("data = %q", files[0].Data)
	}
	if len(skipped) != 2 {
		t.Errorf("skipped = %v, want the escaping and the binary member", skipped)
	}
}

func TestWriteBundleRoundTrip(t *testing.T) {
	for _, ext := range []string{".tar.xz", ".tar.gz"} {
		t.Run(ext, func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), "out", "repaired"+ext)
			in := []File{
				{Name: "GEN.usfm", Data: []byte("\\id GEN\n\\c 1\n")},
				{Name: "sub/EXO.usfm", Data: []byte("\\id EXO\n")},
			}
			if err := WriteBundle(dst, "repaired", in); err != nil {
				t.Fatalf("WriteBundle: %v", err)
			}
			out, err := ReadUSFM(dst, nil)
			if err != nil {
				t.Fatalf("ReadUSFM: %v", err)
			}
			if len(out) != 2 {
				t.Fatalf("got %d files", len(out))
			}
			if out[0].Name != "repaired/GEN.usfm" || string(out[0].Data) != string(in[0].Data) {
				t.Errorf("first member = %s %q", out[0].Name, out[0].Data)
			}
		})
	}
}

func TestWriteBundleRejectsUnsafeNames(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "bad.tar.xz")
	err := WriteBundle(dst, "", []File{{Name: "../x.usfm", Data: []byte("x")}})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestNewReaderUnsupported(t *testing.T) {
	p := filepath.Join(t.TempDir(), "project.zip")
	if err := os.WriteFile(p, []byte("PK"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewReader(p)
	var ue *errors.UnsupportedError
	if !errors.As(err, &ue) || ue.Reason != "unknown" {
		t.Errorf("NewReader(.zip) = %v, want an unsupported archive format", err)
	}
	if validation.KindFromName(p) != validation.InputUnknown {
		t.Error("zip should be unknown")
	}
}

func TestWriteBundleUnsupported(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "repaired.zip")
	err := WriteBundle(dst, "", []File{{Name: "GEN.usfm", Data: []byte("\\id GEN\n")}})
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("WriteBundle(.zip) = %v, want ErrUnsupported", err)
	}
}
