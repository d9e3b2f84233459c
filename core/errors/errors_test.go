package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "with ID",
			err:      &NotFoundError{Resource: "tag", ID: "xyz"},
			wantMsg:  "tag not found: xyz",
			wantBase: ErrNotFound,
		},
		{
			name:     "without ID",
			err:      &NotFoundError{Resource: "project file"},
			wantMsg:  "project file not found",
			wantBase: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if got := tt.err.Unwrap(); !errors.Is(got, tt.wantBase) {
				t.Errorf("Unwrap() = %v, want %v", got, tt.wantBase)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ParseError
		wantMsg string
	}{
		{"format only", &ParseError{Format: "grammar", Message: "no records"}, "failed to parse grammar: no records"},
		{"with path", &ParseError{Format: "YAML", Path: "cfg.yaml", Message: "bad"}, "failed to parse YAML at cfg.yaml: bad"},
		{"with line", &ParseError{Format: "grammar", Path: "tags.jsonl", Line: 4, Message: "bad"}, "failed to parse grammar at tags.jsonl:4: bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrInvalidInput) {
				t.Errorf("expected ParseError to unwrap to ErrInvalidInput")
			}
		})
	}
}

func TestFormatError(t *testing.T) {
	err := NewFormat(KindBookCode, "GN")
	if got, want := err.Error(), `invalid book code: "GN"`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("FormatError should unwrap to ErrInvalidInput")
	}

	var fe *FormatError
	wrapped := Wrap(err, "reading \\id line")
	if !As(wrapped, &fe) {
		t.Fatal("As should find the FormatError through Wrap")
	}
	if fe.Kind != KindBookCode {
		t.Errorf("Kind = %q, want %q", fe.Kind, KindBookCode)
	}
}

func TestInternalError(t *testing.T) {
	err := NewRoundTrip("tokenizer", "line 3 differs")
	if !Is(err, ErrRoundTrip) {
		t.Error("round-trip error should match ErrRoundTrip")
	}
	if Is(err, ErrInvalidInput) {
		t.Error("round-trip error must not look like an input error")
	}
	plain := &InternalError{Component: "ledger", Message: "negative count"}
	if !Is(plain, ErrInternal) {
		t.Error("InternalError without cause should unwrap to ErrInternal")
	}
}

func TestIOError(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewIO("write", "/tmp/out.jsonl", cause)
	if got, want := err.Error(), "failed to write /tmp/out.jsonl: disk full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, cause) {
		t.Error("IOError should unwrap to its cause")
	}
}

func TestUnsupportedError(t *testing.T) {
	err := NewUnsupported("archive format", "zip")
	if got, want := err.Error(), "unsupported archive format: zip"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrUnsupported) {
		t.Error("UnsupportedError should unwrap to ErrUnsupported")
	}
	if got := (&UnsupportedError{Feature: "mapping"}).Error(); got != "unsupported mapping" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}
