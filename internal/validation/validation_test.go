package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantError error
	}{
		{"simple", "gen.usfm", nil},
		{"nested", "project/01GENWEB.SFM", nil},
		{"empty", "", ErrEmptyPath},
		{"too long", strings.Repeat("a", MaxPathLength+1), ErrPathTooLong},
		{"null byte", "gen\x00.usfm", ErrInvalidCharacter},
		{"control character", "gen\x07.usfm", ErrInvalidCharacter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantError == nil && err != nil {
				t.Errorf("ValidatePath(%q) = %v, want nil", tt.path, err)
			}
			if tt.wantError != nil && !errors.Is(err, tt.wantError) {
				t.Errorf("ValidatePath(%q) = %v, want %v", tt.path, err, tt.wantError)
			}
		})
	}
}

func TestValidateEntryName(t *testing.T) {
	tests := []struct {
		name      string
		entry     string
		wantError error
	}{
		{"plain", "project/GEN.usfm", nil},
		{"dot prefix", "./GEN.usfm", nil},
		{"inner dotdot that stays inside", "a/../GEN.usfm", nil},
		{"escape", "../GEN.usfm", ErrPathTraversal},
		{"escape via inner dotdot", "a/../../GEN.usfm", ErrPathTraversal},
		{"absolute", "/etc/passwd", ErrPathTraversal},
		{"backslash", `..\GEN.usfm`, ErrPathTraversal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntryName(tt.entry)
			if tt.wantError == nil && err != nil {
				t.Errorf("ValidateEntryName(%q) = %v, want nil", tt.entry, err)
			}
			if tt.wantError != nil && !errors.Is(err, tt.wantError) {
				t.Errorf("ValidateEntryName(%q) = %v, want %v", tt.entry, err, tt.wantError)
			}
		})
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		filename string
		wantErr  bool
	}{
		{"GEN.usfm", false},
		{"", true},
		{".", true},
		{"..", true},
		{"a/b", true},
		{"-rf", true},
		{strings.Repeat("x", MaxFilenameLength+1), true},
	}
	for _, tt := range tests {
		err := ValidateFilename(tt.filename)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFilename(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"project/GEN.usfm", "project_GEN.usfm", false},
		{" --GEN.usfm ", "GEN.usfm", false},
		{"a\x01b.sfm", "ab.sfm", false},
		{"---", "", true},
	}
	for _, tt := range tests {
		got, err := SanitizeFilename(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("SanitizeFilename(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKindFromName(t *testing.T) {
	tests := map[string]InputKind{
		"GEN.usfm":          InputUSFM,
		"01GENWEB.SFM":      InputUSFM,
		"project.tar.gz":    InputTarGz,
		"project.tgz":       InputTarGz,
		"project.tar.xz":    InputTarXz,
		"notes.txt":         InputUnknown,
		"project.zip":       InputUnknown,
		"GEN.usfm.tar.xz":   InputTarXz,
		"dir/sub/MAT.ptx":   InputUSFM,
		"dir/sub/MAT.usfmx": InputUnknown,
	}
	for name, want := range tests {
		if got := KindFromName(name); got != want {
			t.Errorf("KindFromName(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestDetectInput(t *testing.T) {
	if kind, err := DetectInput("GEN.usfm", []byte("\\id GEN\n\\c 1\n")); err != nil || kind != InputUSFM {
		t.Errorf("usfm: kind %s, err %v", kind, err)
	}
	if _, err := DetectInput("GEN.usfm", []byte{0x00, 0x01, 0x02}); !errors.Is(err, ErrNotText) {
		t.Errorf("binary usfm: err = %v, want ErrNotText", err)
	}
	if kind, err := DetectInput("p.tar.gz", []byte{0x1f, 0x8b, 0x08}); err != nil || kind != InputTarGz {
		t.Errorf("gzip: kind %s, err %v", kind, err)
	}
	if _, err := DetectInput("p.tar.xz", []byte{0x1f, 0x8b}); err == nil {
		t.Error("gzip bytes named .tar.xz should fail")
	}
	if kind, err := DetectInput("p.tar.xz", []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}); err != nil || kind != InputTarXz {
		t.Errorf("xz: kind %s, err %v", kind, err)
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText("ok.usfm", []byte("\\id GEN Bereshit בְּרֵאשִׁית\n")); err != nil {
		t.Errorf("valid text: %v", err)
	}
	if err := ValidateText("nul.usfm", []byte("a\x00b")); !errors.Is(err, ErrNotText) {
		t.Errorf("NUL: err = %v", err)
	}
	if err := ValidateText("latin1.usfm", []byte{'a', 0xe9, 'b'}); !errors.Is(err, ErrNotText) {
		t.Errorf("invalid UTF-8: err = %v", err)
	}
}
