package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/trackshift/platform/uplink/internal/resource"
)

func touch(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildScene(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "forest")
	touch(t, filepath.Join(dir, "catalog.json"), "{}")
	touch(t, filepath.Join(dir, "catalog.hash"), "h")
	touch(t, filepath.Join(dir, "bundles", "terrain.bundle"), "terrain")

	m, err := Build(filepath.Join(dir, "catalog.json"), resource.Scene)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"bundles/terrain.bundle", "catalog.hash", "catalog.json"}
	if got := m.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	if m["bundles/terrain.bundle"] != filepath.Join(dir, "bundles", "terrain.bundle") {
		t.Fatalf("source = %q", m["bundles/terrain.bundle"])
	}
	size, err := m.Size()
	if err != nil || size != int64(len("{}h")+len("terrain")) {
		t.Fatalf("size = %d, %v", size, err)
	}
}

func TestBuildVideo(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "demo.mp4")
	touch(t, video, "v")

	m, err := Build(video, resource.Video)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(m) != 1 || m["demo.mp4"] != video {
		t.Fatalf("manifest = %v", m)
	}

	touch(t, filepath.Join(dir, "demo.png"), "p")
	touch(t, filepath.Join(dir, "other.png"), "o")
	m, err = Build(video, resource.Video)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !reflect.DeepEqual(m.Names(), []string{"demo.mp4", "demo.png"}) {
		t.Fatalf("names = %v", m.Names())
	}
}

func TestBuildRejectsUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	touch(t, path, "x")
	for _, kind := range []resource.Kind{resource.None, resource.Scene, resource.Video} {
		if _, err := Build(path, kind); !errors.Is(err, ErrUnsupportedFileType) {
			t.Fatalf("kind %s: expected ErrUnsupportedFileType, got %v", kind, err)
		}
	}
	video := filepath.Join(dir, "demo.mp4")
	touch(t, video, "v")
	if _, err := Build(video, resource.Scene); !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("mismatched kind: got %v", err)
	}
}

func TestBuildVideoMissing(t *testing.T) {
	if _, err := Build(filepath.Join(t.TempDir(), "gone.mp4"), resource.Video); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
