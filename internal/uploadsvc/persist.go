package uploadsvc

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// filePart is one file of a parsed upload.
type filePart struct {
	// name is the decoded, slash-separated path relative to the destination folder.
	name string
	size int64
	open func() (io.ReadCloser, error)
}

// decodeName unescapes a multipart filename and makes sure it stays inside
// the destination folder. Backslashes from Windows clients are treated as
// separators.
func decodeName(raw string) (string, error) {
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: filename %q: %v", ErrMalformedBody, raw, err)
	}
	name = path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "" || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: filename %q escapes destination", ErrMalformedBody, raw)
	}
	return name, nil
}

// persistAll writes every part below dir concurrently and waits for all
// writes. The first failure is returned; the other writes still run to
// completion and nothing is rolled back.
func persistAll(dir string, parts []filePart) error {
	var g errgroup.Group
	for _, part := range parts {
		part := part
		g.Go(func() error {
			if err := writePart(dir, part); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrPersist, part.name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func writePart(dir string, part filePart) error {
	dest := filepath.Join(dir, filepath.FromSlash(part.name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	src, err := part.open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
