package dlp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Violation describes a policy failure on one uploaded file.
type Violation struct {
	Rule   string
	File   string
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s (%s)", v.File, v.Detail, v.Rule)
}

// Scanner executes policy checks on the files of an upload before they are
// written to the host.
type Scanner interface {
	// ScanFile checks one file. open is only called when the content itself
	// has to be inspected.
	ScanFile(ctx context.Context, name string, size int64, open func() (io.ReadCloser, error)) error
	Enforced() bool
}

const scanChunk = 64 << 10

// RuleScanner performs simple extension/size/AV signature checks.
type RuleScanner struct {
	blockedExt        map[string]struct{}
	maxFileSize       int64
	avSignatures      [][]byte
	enforceViolations bool
}

// NewRuleScannerFromEnv builds a scanner from environment variables.
// It can be disabled entirely via DLP_DISABLED=true.
func NewRuleScannerFromEnv() Scanner {
	if strings.EqualFold(os.Getenv("DLP_DISABLED"), "true") {
		return nil
	}

	s := &RuleScanner{
		blockedExt: map[string]struct{}{
			".exe": {},
			".bat": {},
			".ps1": {},
			".cmd": {},
		},
		enforceViolations: !strings.EqualFold(os.Getenv("DLP_MODE"), "monitor"),
	}

	if raw := os.Getenv("DLP_BLOCKED_EXTENSIONS"); raw != "" {
		s.blockedExt = parseExtensions(raw)
	}

	if raw := os.Getenv("DLP_MAX_FILE_SIZE"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			s.maxFileSize = v
		}
	}

	if raw := os.Getenv("DLP_AV_PATTERNS"); raw != "" {
		for _, pat := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(pat); trimmed != "" {
				s.avSignatures = append(s.avSignatures, []byte(trimmed))
			}
		}
	}

	return s
}

func parseExtensions(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, ext := range strings.Split(raw, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func (s *RuleScanner) Enforced() bool {
	return s.enforceViolations
}

func (s *RuleScanner) ScanFile(ctx context.Context, name string, size int64, open func() (io.ReadCloser, error)) error {
	ext := strings.ToLower(filepath.Ext(name))
	if _, blocked := s.blockedExt[ext]; blocked {
		return &Violation{
			Rule:   "blocked_extension",
			File:   name,
			Detail: fmt.Sprintf("extension %q not allowed", ext),
		}
	}
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return &Violation{
			Rule:   "max_file_size",
			File:   name,
			Detail: fmt.Sprintf("file size %d exceeds limit %d", size, s.maxFileSize),
		}
	}
	if len(s.avSignatures) == 0 || open == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rc, err := open()
	if err != nil {
		return fmt.Errorf("open %s for scan: %w", name, err)
	}
	defer rc.Close()
	matched, err := s.containsSignature(rc)
	if err != nil {
		return fmt.Errorf("read %s for scan: %w", name, err)
	}
	if matched {
		return &Violation{
			Rule:   "av_signature",
			File:   name,
			Detail: "matched AV signature",
		}
	}
	return nil
}

// containsSignature streams r in chunks, carrying the tail of each chunk
// over so signatures that straddle a boundary still match.
func (s *RuleScanner) containsSignature(r io.Reader) (bool, error) {
	overlap := 0
	for _, sig := range s.avSignatures {
		overlap = max(overlap, len(sig)-1)
	}
	buf := make([]byte, overlap+scanChunk)
	carried := 0
	for {
		n, err := io.ReadFull(r, buf[carried:])
		window := buf[:carried+n]
		for _, sig := range s.avSignatures {
			if bytes.Contains(window, sig) {
				return true, nil
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		carried = min(overlap, len(window))
		copy(buf, window[len(window)-carried:])
	}
}
