package delivery

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantNil   bool
		wantErr   error
	}{
		{"empty header", "", 1000, 0, 0, true, nil},
		{"first hundred", "bytes=0-99", 1000, 0, 99, false, nil},
		{"full range", "bytes=0-999", 1000, 0, 999, false, nil},
		{"open ended", "bytes=500-", 1000, 500, 999, false, nil},
		{"suffix range", "bytes=-500", 1000, 500, 999, false, nil},
		{"single byte", "bytes=0-0", 1000, 0, 0, false, nil},
		{"beyond size clamped", "bytes=0-2000", 1000, 0, 999, false, nil},
		{"suffix larger than file", "bytes=-2000", 500, 0, 499, false, nil},
		{"last byte", "bytes=999-", 1000, 999, 999, false, nil},
		{"multi range takes first", "bytes=0-99, 200-299", 1000, 0, 99, false, nil},
		{"surrounding space", "  bytes=10-19 ", 1000, 10, 19, false, nil},

		{"unsatisfiable start", "bytes=1000-", 1000, 0, 0, false, ErrUnsatisfiable},
		{"unsatisfiable beyond", "bytes=1500-2000", 1000, 0, 0, false, ErrUnsatisfiable},
		{"zero suffix", "bytes=-0", 1000, 0, 0, false, ErrUnsatisfiable},
		{"empty body", "bytes=0-", 0, 0, 0, false, ErrUnsatisfiable},
		{"no bytes unit", "invalid", 1000, 0, 0, false, ErrInvalidRange},
		{"wrong unit", "chars=0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"invalid start", "bytes=abc-100", 1000, 0, 0, false, ErrInvalidRange},
		{"invalid end", "bytes=0-abc", 1000, 0, 0, false, ErrInvalidRange},
		{"reversed", "bytes=200-100", 1000, 0, 0, false, ErrInvalidRange},
		{"no dash", "bytes=100", 1000, 0, 0, false, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseRange() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRange() unexpected error: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("ParseRange() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("ParseRange() = nil")
			}
			if got.Start != tt.wantStart || got.End != tt.wantEnd {
				t.Errorf("ParseRange() = %d-%d, want %d-%d", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestRange_Headers(t *testing.T) {
	r := Range{Start: 0, End: 99}
	if r.ContentLength() != 100 {
		t.Errorf("ContentLength() = %d, want 100", r.ContentLength())
	}
	if got := r.ContentRange(1000); got != "bytes 0-99/1000" {
		t.Errorf("ContentRange() = %q", got)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{" A\nB\rC\tD\x00 ", 100, "ABCD"},
		{"Az09 -_.,()", 100, "Az09 -_.,()"},
		{`bad<>|"name`, 100, "bad____name"},
		{"abcdefghijklmnopqrstuvwxyz", 10, "abcdefghij"},
		{"Ünïcödé Story", 100, "Ünïcödé Story"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in, tt.max); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDownloadName(t *testing.T) {
	if got := downloadName("My / Story", "id1", ".mp4"); got != "My _ Story.mp4" {
		t.Errorf("downloadName() = %q", got)
	}
	if got := downloadName("...", "id1", ".zip"); got != "id1.zip" {
		t.Errorf("downloadName() = %q, want id fallback", got)
	}
}
