package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/ekisa-team/leafsight/internal/config"
)

// URLDownloader downloads a model from a direct HTTP(S) link.
type URLDownloader struct{}

// Open requests the artifact.
func (d *URLDownloader) Open(ctx context.Context, client *http.Client, src config.ModelSource) (*http.Response, error) {
	s, ok := src.(config.URLSource)
	if !ok {
		return nil, backoff.Permanent(fmt.Errorf("invalid source type: %T", src))
	}

	return get(ctx, client, s.URL, nil, nil)
}
