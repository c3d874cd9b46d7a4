package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/ekisa-team/leafsight/internal/config"
)

const (
	defaultHuggingFaceEndpoint = "https://huggingface.co"
	defaultRevision            = "main"
)

// HuggingFaceDownloader downloads a single file from a Hugging Face model repository.
type HuggingFaceDownloader struct {
	// Endpoint overrides https://huggingface.co.
	Endpoint string
}

// Open requests the file through the repository's resolve endpoint.
func (d *HuggingFaceDownloader) Open(ctx context.Context, client *http.Client, src config.ModelSource) (*http.Response, error) {
	s, ok := src.(config.HuggingFaceSource)
	if !ok {
		return nil, backoff.Permanent(fmt.Errorf("invalid source type: %T", src))
	}

	u, err := d.resolveURL(s)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	var header http.Header
	if s.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + s.Token}}
	}

	return get(ctx, client, u, header, nil)
}

// resolveURL builds {endpoint}/{repo}/resolve/{revision}/{filename}.
func (d *HuggingFaceDownloader) resolveURL(s config.HuggingFaceSource) (string, error) {
	repo := strings.Trim(strings.TrimSpace(s.Repo), "/")
	if strings.Count(repo, "/") != 1 {
		return "", fmt.Errorf("invalid repo name: %s", repo)
	}

	filename := strings.Trim(strings.TrimSpace(s.Filename), "/")
	if filename == "" {
		return "", fmt.Errorf("missing filename for repo %s", repo)
	}

	revision := s.Revision
	if revision == "" {
		revision = defaultRevision
	}

	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = defaultHuggingFaceEndpoint
	}

	segments := []string{strings.TrimRight(endpoint, "/")}
	for _, part := range strings.Split(repo, "/") {
		segments = append(segments, url.PathEscape(part))
	}
	segments = append(segments, "resolve", url.PathEscape(revision))
	for _, part := range strings.Split(filename, "/") {
		segments = append(segments, url.PathEscape(part))
	}

	return strings.Join(segments, "/"), nil
}
