package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/leafsight/internal/config"
)

var artifact = bytes.Repeat([]byte("onnx-weights-"), 4096)

func newFetcher(client *http.Client, opts ...Option) *Fetcher {
	base := []Option{
		WithHTTPClient(client),
		WithMaxRetries(2),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}
	return NewFetcher(append(base, opts...)...)
}

func servingArtifact(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", fmt.Sprint(len(artifact)))
		_, _ = w.Write(artifact)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func partFiles(t *testing.T, dir string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, ".*.part"))
	require.NoError(t, err)
	return matches
}

func TestFetchIfAbsent_SecondCallMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := servingArtifact(t, &hits)
	path := filepath.Join(t.TempDir(), "tomato", "model.onnx")
	src := config.URLSource{URL: srv.URL + "/model.onnx"}

	f := newFetcher(srv.Client())

	res, err := f.FetchIfAbsent(context.Background(), path, src)
	require.NoError(t, err)
	assert.True(t, res.Fetched)
	assert.Equal(t, int64(len(artifact)), res.Size)
	assert.Equal(t, int32(1), hits.Load())

	res, err = f.FetchIfAbsent(context.Background(), path, src)
	require.NoError(t, err)
	assert.False(t, res.Fetched)
	assert.Equal(t, int32(1), hits.Load())

	// A fresh fetcher (a restarted process) trusts the file as well.
	res, err = newFetcher(srv.Client()).FetchIfAbsent(context.Background(), path, src)
	require.NoError(t, err)
	assert.False(t, res.Fetched)
	assert.Equal(t, int32(1), hits.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, artifact, data)
}

func TestFetchIfAbsent_EmptyFileIsRefetched(t *testing.T) {
	var hits atomic.Int32
	srv := servingArtifact(t, &hits)
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	res, err := newFetcher(srv.Client()).FetchIfAbsent(context.Background(), path, config.URLSource{URL: srv.URL})
	require.NoError(t, err)
	assert.True(t, res.Fetched)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchIfAbsent_ConcurrentCallersShareOneDownload(t *testing.T) {
	var hits atomic.Int32
	srv := servingArtifact(t, &hits)
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	src := config.URLSource{URL: srv.URL}

	f := newFetcher(srv.Client())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.FetchIfAbsent(context.Background(), path, src)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, artifact, data)
	assert.Empty(t, partFiles(t, dir))
}

func TestFetchIfAbsent_IndependentFetchersNeverCorruptTheFile(t *testing.T) {
	var hits atomic.Int32
	srv := servingArtifact(t, &hits)
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	src := config.URLSource{URL: srv.URL}

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := newFetcher(srv.Client()).FetchIfAbsent(context.Background(), path, src)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, artifact, data)
	assert.Empty(t, partFiles(t, dir))
}

func TestFetchIfAbsent_TruncatedTransferLeavesNoFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", fmt.Sprint(len(artifact)))
		_, _ = w.Write(artifact[:100])
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")

	_, err := newFetcher(srv.Client()).FetchIfAbsent(context.Background(), path, config.URLSource{URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.Equal(t, int32(3), hits.Load())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, partFiles(t, dir))
}

func TestFetchIfAbsent_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(artifact)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "model.onnx")
	res, err := newFetcher(srv.Client()).FetchIfAbsent(context.Background(), path, config.URLSource{URL: srv.URL})
	require.NoError(t, err)
	assert.True(t, res.Fetched)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchIfAbsent_ClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	rawURL := srv.URL + "/model.onnx?token=secret"
	_, err := newFetcher(srv.Client()).FetchIfAbsent(context.Background(), filepath.Join(t.TempDir(), "m.onnx"), config.URLSource{URL: rawURL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Equal(t, int32(1), hits.Load())
	assertNoURLLeak(t, err, rawURL)
}

func TestFetchIfAbsent_RejectsOversizedArtifacts(t *testing.T) {
	t.Run("content length", func(t *testing.T) {
		var hits atomic.Int32
		srv := servingArtifact(t, &hits)

		_, err := newFetcher(srv.Client(), WithMaxBytes(10)).
			FetchIfAbsent(context.Background(), filepath.Join(t.TempDir(), "m.onnx"), config.URLSource{URL: srv.URL})
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("stream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			for range 6 {
				_, _ = w.Write([]byte("a"))
				w.(http.Flusher).Flush()
			}
		}))
		defer srv.Close()

		_, err := newFetcher(srv.Client(), WithMaxBytes(5)).
			FetchIfAbsent(context.Background(), filepath.Join(t.TempDir(), "m.onnx"), config.URLSource{URL: srv.URL})
		assert.ErrorIs(t, err, ErrTooLarge)
	})
}

func TestFetchIfAbsent_VerifiesChecksum(t *testing.T) {
	var hits atomic.Int32
	srv := servingArtifact(t, &hits)
	path := filepath.Join(t.TempDir(), "m.onnx")

	_, err := newFetcher(srv.Client(), WithMaxRetries(0)).
		FetchIfAbsent(context.Background(), path, config.URLSource{URL: srv.URL, SHA256: strings.Repeat("0", 64)})
	assert.ErrorIs(t, err, ErrChecksum)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchIfAbsent_ReportsProgress(t *testing.T) {
	var hits atomic.Int32
	srv := servingArtifact(t, &hits)

	var seen bytes.Buffer
	var total int64
	progress := func(n int64, _ string) io.Writer {
		total = n
		return &seen
	}

	_, err := newFetcher(srv.Client(), WithProgress(progress)).
		FetchIfAbsent(context.Background(), filepath.Join(t.TempDir(), "m.onnx"), config.URLSource{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int64(len(artifact)), total)
	assert.Equal(t, len(artifact), seen.Len())
}

func TestGetDownloader_Unsupported(t *testing.T) {
	_, err := NewFetcher().GetDownloader("s3")
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func assertNoURLLeak(t *testing.T, err error, rawURL string) {
	t.Helper()
	if err == nil {
		return
	}
	msg := err.Error()
	if strings.Contains(msg, rawURL) {
		t.Fatalf("error leaked full URL: %s", msg)
	}
	if strings.Contains(msg, "token=secret") {
		t.Fatalf("error leaked query string: %s", msg)
	}
}
