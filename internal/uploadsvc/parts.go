package uploadsvc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
)

// readParts streams the multipart body of r. File parts are kept in memory
// while their combined size fits maxMemory and spooled to temporary files
// after that. Fields without a filename are skipped. The returned cleanup
// removes any spooled files and is safe to call on error.
func readParts(r *http.Request, maxMemory int64) ([]filePart, func(), error) {
	var spooled []string
	cleanup := func() {
		for _, name := range spooled {
			_ = os.Remove(name)
		}
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, cleanup, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	var parts []filePart
	seen := make(map[string]struct{})
	remaining := maxMemory
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, cleanup, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		if p.FileName() == "" {
			_ = p.Close()
			continue
		}
		name, err := decodeName(p.FileName())
		if err != nil {
			_ = p.Close()
			return nil, cleanup, err
		}
		if _, dup := seen[name]; dup {
			_ = p.Close()
			return nil, cleanup, fmt.Errorf("%w: duplicate file %q", ErrMalformedBody, name)
		}
		seen[name] = struct{}{}

		part, spool, err := bufferPart(p, name, remaining)
		_ = p.Close()
		if spool != "" {
			spooled = append(spooled, spool)
		}
		if err != nil {
			return nil, cleanup, err
		}
		if spool == "" {
			remaining -= part.size
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return nil, cleanup, fmt.Errorf("%w: no file parts", ErrMalformedBody)
	}
	return parts, cleanup, nil
}

// bufferPart reads p into memory when it fits budget and into a temporary
// file otherwise. spool names the temporary file, if one was created.
func bufferPart(p *multipart.Part, name string, budget int64) (part filePart, spool string, err error) {
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, p, budget+1)
	if err != nil && !errors.Is(err, io.EOF) {
		return filePart{}, "", fmt.Errorf("%w: read %s: %v", ErrMalformedBody, name, err)
	}
	if n <= budget {
		data := buf.Bytes()
		return filePart{
			name: name,
			size: n,
			open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
		}, "", nil
	}

	f, err := os.CreateTemp("", "uplink-part-*")
	if err != nil {
		return filePart{}, "", fmt.Errorf("spool %s: %w", name, err)
	}
	spool = f.Name()
	size, err := io.Copy(f, io.MultiReader(&buf, p))
	if cerr := f.Close(); err == nil && cerr != nil {
		return filePart{}, spool, fmt.Errorf("spool %s: %w", name, cerr)
	}
	if err != nil {
		return filePart{}, spool, fmt.Errorf("%w: read %s: %v", ErrMalformedBody, name, err)
	}
	return filePart{
		name: name,
		size: size,
		open: func() (io.ReadCloser, error) { return os.Open(spool) },
	}, spool, nil
}
