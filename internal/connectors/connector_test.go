package connectors

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type memoryConnector struct {
	mu      sync.Mutex
	files   map[string]string
	fail    map[string]bool
	openErr error
	opened  int
	closed  int
}

func (m *memoryConnector) Name() string { return "memory" }

func (m *memoryConnector) Open(context.Context) (Session, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opened++
	return m, nil
}

func (m *memoryConnector) Close() error {
	m.closed++
	return nil
}

func (m *memoryConnector) Store(_ context.Context, key string, body io.ReadSeeker, size int64) error {
	if m.fail[key] {
		return errors.New("boom")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = string(data)
	return nil
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMirrorCopiesFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Videos/demo.mp4": "video",
		"Videos/demo.png": "thumb",
	})
	conn := &memoryConnector{files: map[string]string{}}
	err := Mirror(context.Background(), []Connector{conn}, root, []string{"Videos/demo.mp4", "Videos/demo.png"}, true, zerolog.Nop())
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	if conn.files["Videos/demo.mp4"] != "video" || conn.files["Videos/demo.png"] != "thumb" {
		t.Fatalf("unexpected files %v", conn.files)
	}
}

func TestMirrorStrictness(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a", "b.txt": "b"})

	lenient := &memoryConnector{files: map[string]string{}, fail: map[string]bool{"a.txt": true}}
	if err := Mirror(context.Background(), []Connector{lenient}, root, []string{"a.txt", "b.txt"}, false, zerolog.Nop()); err != nil {
		t.Fatalf("lenient mirror returned %v", err)
	}
	if lenient.files["b.txt"] != "b" {
		t.Fatal("lenient mirror skipped remaining files")
	}

	strict := &memoryConnector{files: map[string]string{}, fail: map[string]bool{"a.txt": true}}
	if err := Mirror(context.Background(), []Connector{strict}, root, []string{"a.txt", "b.txt"}, true, zerolog.Nop()); err == nil {
		t.Fatal("strict mirror should fail")
	}
}

func TestMirrorUsesOneSessionPerConnector(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/1.bin": "1", "a/2.bin": "2", "a/3.bin": "3"})
	conn := &memoryConnector{files: map[string]string{}}

	if err := Mirror(context.Background(), []Connector{conn}, root, []string{"a/1.bin", "a/2.bin", "a/3.bin"}, true, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	if conn.opened != 1 || conn.closed != 1 {
		t.Fatalf("opened=%d closed=%d, want 1/1", conn.opened, conn.closed)
	}
}

func TestMirrorUnavailableConnector(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})
	down := &memoryConnector{openErr: errors.New("refused")}
	up := &memoryConnector{files: map[string]string{}}

	if err := Mirror(context.Background(), []Connector{down, up}, root, []string{"a.txt"}, false, zerolog.Nop()); err != nil {
		t.Fatalf("lenient mirror returned %v", err)
	}
	if up.files["a.txt"] != "a" {
		t.Fatal("healthy connector skipped after unavailable one")
	}
	if err := Mirror(context.Background(), []Connector{down}, root, []string{"a.txt"}, true, zerolog.Nop()); err == nil {
		t.Fatal("strict mirror should fail when a connector is unavailable")
	}
}

func TestLoadSkipsMisconfigured(t *testing.T) {
	got := Load(context.Background(), []string{"s3", "sftp", "ftps", "azure", "carrier-pigeon", " "}, DefaultSettings(), zerolog.Nop())
	if len(got) != 0 {
		t.Fatalf("expected no connectors, got %d", len(got))
	}
}

func TestLoadSFTP(t *testing.T) {
	settings := DefaultSettings()
	settings.SFTP.Host = "files.lan"
	settings.SFTP.User = "uplink"
	settings.SFTP.Password = "secret"
	settings.SFTP.BaseDir = "/srv/mirror/"

	got := Load(context.Background(), []string{"SFTP"}, settings, zerolog.Nop())
	if len(got) != 1 || got[0].Name() != "sftp" {
		t.Fatalf("unexpected connectors %v", got)
	}
	conn := got[0].(*sftpConnector)
	if conn.addr != "files.lan:22" {
		t.Fatalf("addr = %q", conn.addr)
	}
	session := &sftpSession{baseDir: conn.baseDir}
	if p := session.remotePath("Videos/demo.mp4"); p != "/srv/mirror/Videos/demo.mp4" {
		t.Fatalf("remote path = %q", p)
	}
}

func TestRemoteKey(t *testing.T) {
	cases := []struct{ prefix, key, want string }{
		{"", "Videos/demo.mp4", "Videos/demo.mp4"},
		{"uplink", "Videos/demo.mp4", "uplink/Videos/demo.mp4"},
		{" /mirror/ ", "a.bin", "mirror/a.bin"},
	}
	for _, tc := range cases {
		if got := remoteKey(tc.prefix, tc.key); got != tc.want {
			t.Errorf("remoteKey(%q, %q) = %q, want %q", tc.prefix, tc.key, got, tc.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("Videos/demo.png"); got != "image/png" {
		t.Fatalf("png content type = %q", got)
	}
	if got := contentType("scene.bundle"); got != "application/octet-stream" {
		t.Fatalf("fallback content type = %q", got)
	}
}
