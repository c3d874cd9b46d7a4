package source

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/ekisa-team/leafsight/internal/config"
)

const (
	defaultDriveEndpoint   = "https://drive.google.com/uc"
	driveWarningCookie     = "download_warning"
	driveFallbackConfirm   = "t"
	maxDriveInterstitialKB = 512
)

var (
	driveConfirmPattern = regexp.MustCompile(`confirm=([0-9A-Za-z_-]+)`)
	driveUUIDPattern    = regexp.MustCompile(`name="uuid" value="([0-9A-Za-z_-]+)"`)
)

// GoogleDriveDownloader downloads a publicly shared Google Drive file.
//
// Large files are answered with an HTML "can't scan for viruses" page. The
// confirmation token comes either from a download_warning cookie or from the
// page itself, and the request is repeated with it.
type GoogleDriveDownloader struct {
	// Endpoint overrides https://drive.google.com/uc.
	Endpoint string
}

// Open requests the file, following the large-file confirmation if needed.
func (d *GoogleDriveDownloader) Open(ctx context.Context, client *http.Client, src config.ModelSource) (*http.Response, error) {
	s, ok := src.(config.GoogleDriveSource)
	if !ok {
		return nil, backoff.Permanent(fmt.Errorf("invalid source type: %T", src))
	}

	id := strings.TrimSpace(s.FileID)
	if id == "" {
		parsed, err := ParseDriveFileID(s.Link)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		id = parsed
	}

	params := url.Values{"export": {"download"}, "id": {id}}
	resp, err := get(ctx, client, d.endpoint()+"?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	if !isHTML(resp) {
		return resp, nil
	}

	confirm, uuid, cookies := driveConfirmation(resp)
	resp.Body.Close()

	params.Set("confirm", confirm)
	if uuid != "" {
		params.Set("uuid", uuid)
	}

	resp, err = get(ctx, client, d.endpoint()+"?"+params.Encode(), nil, cookies)
	if err != nil {
		return nil, err
	}
	if isHTML(resp) {
		resp.Body.Close()
		return nil, backoff.Permanent(fmt.Errorf("%w: file %s is not shared publicly or exceeded its quota", ErrDriveConfirm, id))
	}

	return resp, nil
}

func (d *GoogleDriveDownloader) endpoint() string {
	if d.Endpoint != "" {
		return d.Endpoint
	}
	return defaultDriveEndpoint
}

// driveConfirmation extracts the confirm token and the cookies to send back.
func driveConfirmation(resp *http.Response) (confirm, uuid string, cookies []*http.Cookie) {
	cookies = resp.Cookies()
	for _, c := range cookies {
		if strings.HasPrefix(c.Name, driveWarningCookie) {
			return c.Value, "", cookies
		}
	}

	page, _ := io.ReadAll(io.LimitReader(resp.Body, maxDriveInterstitialKB<<10))
	if m := driveConfirmPattern.FindSubmatch(page); m != nil {
		confirm = string(m[1])
	} else {
		confirm = driveFallbackConfirm
	}
	if m := driveUUIDPattern.FindSubmatch(page); m != nil {
		uuid = string(m[1])
	}

	return confirm, uuid, cookies
}

func isHTML(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == "text/html"
}

// ParseDriveFileID extracts the file ID from a Drive share link. Both
// "...?id=<ID>" and ".../file/d/<ID>/view" forms are accepted.
func ParseDriveFileID(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid google drive link: %q", link)
	}

	if id := u.Query().Get("id"); id != "" {
		return id, nil
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "d" && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("no file id in google drive link: %s", u.Host+u.Path)
}
