package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/trackshift/platform/uplink/internal/manifest"
	"github.com/trackshift/platform/uplink/internal/provision"
	"github.com/trackshift/platform/uplink/internal/resource"
)

const (
	defaultProgressInterval = 100 * time.Millisecond
	formField               = "files[]"
)

var (
	// ErrProvision means the host refused to open an upload endpoint or could
	// not be reached for the handshake.
	ErrProvision = errors.New("provisioning failed")
	// ErrTransfer means the multipart POST failed or was rejected.
	ErrTransfer = errors.New("transfer failed")
)

// Provisioner negotiates an upload endpoint with the host.
type Provisioner interface {
	Provision(ctx context.Context, req provision.Request) (provision.Response, error)
}

// Housekeeper performs host-side chores around an upload.
type Housekeeper interface {
	// Clean removes a stale copy of the destination before uploading.
	Clean(kind resource.Kind, name string) error
	// Reveal points the user at the finished upload.
	Reveal(kind resource.Kind, name string)
}

// Outcome is the result of one Upload call. Err is nil on success.
type Outcome struct {
	Kind resource.Kind
	Name string
	// Path is the destination relative to the host storage root.
	Path  string
	Files int
	Bytes int64
	Err   error
}

func (o Outcome) Success() bool { return o.Err == nil }

type Config struct {
	Provisioner       Provisioner
	HTTPClient        *http.Client
	Housekeeper       Housekeeper
	CleanBeforeUpload bool
	// OnProgress receives the transferred fraction in [0,1]; values never
	// decrease. It is called from a background goroutine.
	OnProgress       func(float64)
	ProgressInterval time.Duration
	Logger           zerolog.Logger
}

type Uploader struct {
	provisioner Provisioner
	client      *http.Client
	housekeeper Housekeeper
	clean       bool
	onProgress  func(float64)
	interval    time.Duration
	logger      zerolog.Logger
}

func New(cfg Config) *Uploader {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	return &Uploader{
		provisioner: cfg.Provisioner,
		client:      client,
		housekeeper: cfg.Housekeeper,
		clean:       cfg.CleanBeforeUpload,
		onProgress:  cfg.OnProgress,
		interval:    interval,
		logger:      cfg.Logger.With().Str("component", "uploader").Logger(),
	}
}

// Upload sends the scene directory or video named by targetPath to the host.
func (u *Uploader) Upload(ctx context.Context, targetPath string) Outcome {
	kind := resource.Classify(targetPath)
	if kind == resource.None {
		return Outcome{Err: fmt.Errorf("%w: %s", manifest.ErrUnsupportedFileType, filepath.Base(targetPath))}
	}
	name := resource.DisplayName(kind, targetPath)
	out := Outcome{
		Kind: kind,
		Name: name,
		Path: filepath.ToSlash(kind.Destination("", name)),
	}
	logger := u.logger.With().Str("kind", kind.String()).Str("target", name).Logger()

	if u.clean && u.housekeeper != nil {
		if err := u.housekeeper.Clean(kind, name); err != nil {
			logger.Warn().Err(err).Msg("failed to clean previous upload")
		}
	}

	logger.Info().Str("path", targetPath).Msg("requesting upload endpoint")
	resp, err := u.provisioner.Provision(ctx, provision.Request{Name: name, Type: int(kind)})
	if err != nil {
		out.Err = fmt.Errorf("%w: %v", ErrProvision, err)
		return out
	}
	if resp.Message != "" {
		out.Err = fmt.Errorf("%w: %s", ErrProvision, resp.Message)
		return out
	}

	m, err := manifest.Build(targetPath, kind)
	if err != nil {
		out.Err = err
		return out
	}
	total, err := m.Size()
	if err != nil {
		out.Err = fmt.Errorf("stat manifest: %w", err)
		return out
	}
	out.Files = len(m)
	out.Bytes = total

	logger.Info().Str("url", resp.URL).Int("files", len(m)).Int64("bytes", total).Msg("uploading")
	if err := u.send(ctx, resp.URL, resp.Token, m, total); err != nil {
		out.Err = err
		return out
	}
	logger.Info().Msg("upload complete")
	if u.housekeeper != nil {
		u.housekeeper.Reveal(kind, name)
	}
	return out
}

func (u *Uploader) send(ctx context.Context, endpoint, tok string, m manifest.Manifest, total int64) error {
	var sent atomic.Int64
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, m, &sent))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("%w: %v", ErrTransfer, err)
	}
	req.Header.Set("Authorization", tok)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	progress := &progressReporter{fn: u.onProgress, last: -1}
	stop := progress.track(u.interval, &sent, total)
	resp, err := u.client.Do(req)
	stop()
	if err != nil {
		pr.Close()
		return fmt.Errorf("%w: %v", ErrTransfer, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrTransfer, rejection(resp))
	}
	progress.report(1)
	return nil
}

func writeParts(mw *multipart.Writer, m manifest.Manifest, sent *atomic.Int64) error {
	for _, name := range m.Names() {
		part, err := mw.CreateFormFile(formField, url.PathEscape(name))
		if err != nil {
			return err
		}
		if err := copyFile(part, m[name], sent); err != nil {
			return fmt.Errorf("send %s: %w", name, err)
		}
	}
	return mw.Close()
}

func copyFile(dst io.Writer, src string, sent *atomic.Int64) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, &countingReader{r: f, n: sent})
	return err
}

// rejection turns a non-200 upload response into a readable reason.
func rejection(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Sprintf("%s: %s", resp.Status, payload.Error)
	}
	return resp.Status
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// progressReporter forwards monotonically increasing fractions. report is
// only called by one goroutine at a time.
type progressReporter struct {
	fn   func(float64)
	last float64
}

func (p *progressReporter) report(f float64) {
	if p.fn == nil || f <= p.last {
		return
	}
	p.last = f
	p.fn(f)
}

// track samples sent every interval until the returned stop func is called.
func (p *progressReporter) track(interval time.Duration, sent *atomic.Int64, total int64) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.report(fraction(sent.Load(), total))
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func fraction(sent, total int64) float64 {
	if total <= 0 {
		return 0
	}
	if sent >= total {
		return 1
	}
	return float64(sent) / float64(total)
}
