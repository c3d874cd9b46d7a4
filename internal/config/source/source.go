package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"

	"github.com/ekisa-team/leafsight/internal/config"
	"github.com/ekisa-team/leafsight/internal/xfs"
)

const (
	defaultMaxRetries = 3
	defaultTimeout    = config.DefaultDownloadTimeout
	defaultMaxBytes   = int64(config.DefaultMaxDownloadMB) << 20
)

// Downloader opens a model artifact from a remote source. The returned
// response has a 2xx status and its body is the artifact itself.
type Downloader interface {
	Open(ctx context.Context, client *http.Client, src config.ModelSource) (*http.Response, error)
}

// Result describes the artifact on disk after FetchIfAbsent.
type Result struct {
	Path    string
	Size    int64
	Fetched bool
}

// ProgressFunc returns a writer that observes downloaded bytes. total is -1 when unknown.
type ProgressFunc func(total int64, description string) io.Writer

// Fetcher places model artifacts on disk, downloading them only when absent.
type Fetcher struct {
	client      *http.Client
	downloaders map[config.SourceType]Downloader
	progress    ProgressFunc
	newBackOff  func() backoff.BackOff
	locks       sync.Map
	maxBytes    int64
	maxRetries  uint64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		f.client = &http.Client{Timeout: timeout}
	}
}

// WithMaxBytes caps the artifact size.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// WithMaxRetries sets how many times a failed transfer is retried.
func WithMaxRetries(n uint64) Option {
	return func(f *Fetcher) {
		f.maxRetries = n
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(f *Fetcher) {
		f.newBackOff = newBackOff
	}
}

// WithProgress reports transfer progress.
func WithProgress(progress ProgressFunc) Option {
	return func(f *Fetcher) {
		f.progress = progress
	}
}

// WithDownloader registers or replaces the downloader for a source type.
func WithDownloader(t config.SourceType, d Downloader) Option {
	return func(f *Fetcher) {
		f.downloaders[t] = d
	}
}

// NewFetcher creates a Fetcher with the built-in downloaders.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     &http.Client{Timeout: defaultTimeout},
		maxBytes:   defaultMaxBytes,
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		downloaders: map[config.SourceType]Downloader{
			config.SourceTypeURL:         &URLDownloader{},
			config.SourceTypeGoogleDrive: &GoogleDriveDownloader{},
			config.SourceTypeHuggingFace: &HuggingFaceDownloader{},
		},
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// GetDownloader returns the downloader registered for a source type.
func (f *Fetcher) GetDownloader(t config.SourceType) (Downloader, error) {
	d, ok := f.downloaders[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, t)
	}
	return d, nil
}

// FetchIfAbsent makes sure a complete artifact exists at path.
//
// A non-empty file at path is trusted as is and no request is made. Otherwise
// the artifact is streamed into a temporary file next to path and renamed
// into place once complete, so path never holds a partial transfer.
func (f *Fetcher) FetchIfAbsent(ctx context.Context, path string, src config.ModelSource) (Result, error) {
	path = filepath.Clean(path)

	if res, ok, err := present(path); err != nil || ok {
		return res, err
	}

	mu := f.lock(path)
	mu.Lock()
	defer mu.Unlock()

	// Another caller may have finished while we waited.
	if res, ok, err := present(path); err != nil || ok {
		return res, err
	}

	d, err := f.GetDownloader(src.Type())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	if err := EnsureModelsDirectory(filepath.Dir(path)); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	slog.Info("Downloading model", "source", src.String(), "path", path)
	start := time.Now()

	var (
		size    int64
		attempt int
	)
	op := func() error {
		attempt++
		n, err := f.transfer(ctx, d, src, path)
		if err != nil {
			return err
		}
		size = n
		return nil
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("Model download failed, retrying", "source", src.String(), "attempt", attempt, "retry_in", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.maxRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		slog.Error("Failed to download model", "source", src.String(), "path", path, "attempts", attempt, "error", err)
		return Result{}, fmt.Errorf("%w: %s: %w", ErrDownload, src.String(), err)
	}

	slog.Info("Model downloaded successfully",
		"source", src.String(),
		"path", path,
		"size", humanize.Bytes(uint64(size)),
		"attempts", attempt,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return Result{Path: path, Size: size, Fetched: true}, nil
}

// transfer performs one download attempt into a temp file and renames it onto path.
func (f *Fetcher) transfer(ctx context.Context, d Downloader, src config.ModelSource, path string) (int64, error) {
	resp, err := d.Open(ctx, f.client, src)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.ContentLength > f.maxBytes {
		return 0, backoff.Permanent(fmt.Errorf("%w: content length %s exceeds %s",
			ErrTooLarge, humanize.Bytes(uint64(resp.ContentLength)), humanize.Bytes(uint64(f.maxBytes))))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var hasher hash.Hash
	writers := []io.Writer{tmp}
	if checksum(src) != "" {
		hasher = sha256.New()
		writers = append(writers, hasher)
	}
	if f.progress != nil {
		if w := f.progress(resp.ContentLength, filepath.Base(path)); w != nil {
			writers = append(writers, w)
		}
	}

	// Read one byte past the limit to detect oversized streams.
	n, err := io.Copy(io.MultiWriter(writers...), io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return 0, fmt.Errorf("transfer interrupted after %s: %w", humanize.Bytes(uint64(n)), redact(err))
	}
	if n > f.maxBytes {
		return 0, backoff.Permanent(fmt.Errorf("%w: stream exceeds %s", ErrTooLarge, humanize.Bytes(uint64(f.maxBytes))))
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return 0, fmt.Errorf("%w: got %d of %d bytes", ErrIncomplete, n, resp.ContentLength)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: empty body", ErrIncomplete)
	}
	if hasher != nil {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(sum, checksum(src)) {
			return 0, fmt.Errorf("%w for %s", ErrChecksum, filepath.Base(path))
		}
	}

	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("failed to flush download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close download: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("failed to finalize download: %w", err))
	}
	committed = true

	return n, nil
}

func (f *Fetcher) lock(path string) *sync.Mutex {
	mu, _ := f.locks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// EnsureModelsDirectory creates the models directory if needed.
func EnsureModelsDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory %s: %w", path, err)
	}
	return nil
}

func present(path string) (Result, bool, error) {
	ok, err := xfs.NonEmptyFile(path)
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: failed to stat %s: %w", ErrDownload, path, err)
	}
	if !ok {
		return Result{}, false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: failed to stat %s: %w", ErrDownload, path, err)
	}

	slog.Debug("Model artifact already present, skipping download", "path", path, "size", humanize.Bytes(uint64(info.Size())))
	return Result{Path: path, Size: info.Size()}, true, nil
}

func checksum(src config.ModelSource) string {
	switch s := src.(type) {
	case config.URLSource:
		return strings.TrimSpace(s.SHA256)
	case config.GoogleDriveSource:
		return strings.TrimSpace(s.SHA256)
	case config.HuggingFaceSource:
		return strings.TrimSpace(s.SHA256)
	}
	return ""
}

// get issues a GET and classifies failures for the retry policy.
// Client errors are permanent; server errors and transport failures are retried.
func get(ctx context.Context, client *http.Client, rawURL string, header http.Header, cookies []*http.Cookie) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", redact(err)))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, redact(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		err := fmt.Errorf("%w: unexpected status %d", ErrStatus, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return resp, nil
}

// redact drops the request URL from transport errors; it may carry tokens.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s request failed: %w", ue.Op, ue.Err)
	}
	return err
}
