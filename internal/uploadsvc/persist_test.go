package uploadsvc

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func bytesPart(name, body string) filePart {
	return filePart{
		name: name,
		size: int64(len(body)),
		open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

func TestPersistAllWritesNestedFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "StandaloneWindows64", "forest")
	parts := []filePart{
		bytesPart("catalog.json", "{}"),
		bytesPart("bundles/a.bundle", "aaa"),
		bytesPart("bundles/deep/b.bundle", "bbb"),
	}
	if err := persistAll(dir, parts); err != nil {
		t.Fatalf("persist: %v", err)
	}
	for _, p := range parts {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p.name)))
		if err != nil {
			t.Fatalf("read %s: %v", p.name, err)
		}
		if int64(len(data)) != p.size {
			t.Fatalf("%s has %d bytes, want %d", p.name, len(data), p.size)
		}
	}
}

func TestPersistAllKeepsSuccessfulWritesOnFailure(t *testing.T) {
	dir := t.TempDir()
	// a directory where a file should go makes that one write fail
	if err := os.Mkdir(filepath.Join(dir, "b.txt"), 0o755); err != nil {
		t.Fatal(err)
	}
	parts := []filePart{
		bytesPart("a.txt", "a"),
		bytesPart("b.txt", "b"),
		bytesPart("c.txt", "c"),
		{name: "d.txt", open: func() (io.ReadCloser, error) { return nil, errors.New("source gone") }},
	}
	err := persistAll(dir, parts)
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	for _, name := range []string{"a.txt", "c.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s should have been written: %v", name, err)
		}
	}
}

func TestDecodeName(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "demo.mp4", want: "demo.mp4"},
		{raw: "%E8%A7%86%E9%A2%91.mp4", want: "视频.mp4"},
		{raw: "bundles%2Fa.bundle", want: "bundles/a.bundle"},
		{raw: "bundles%5Cwin%5Cb.bundle", want: "bundles/win/b.bundle"},
		{raw: "a%20b.txt", want: "a b.txt"},
		{raw: "..%2F..%2Fetc%2Fpasswd", wantErr: true},
		{raw: "%2Fabs.txt", wantErr: true},
		{raw: "%zz", wantErr: true},
		{raw: ".", wantErr: true},
	}
	for _, tc := range cases {
		got, err := decodeName(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrMalformedBody) {
				t.Errorf("decodeName(%q) err = %v, want ErrMalformedBody", tc.raw, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("decodeName(%q) = %q, %v; want %q", tc.raw, got, err, tc.want)
		}
	}
}
