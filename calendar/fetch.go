package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// maxBodySize bounds a single feed download.
const maxBodySize = 16 << 20

// ErrNoURL is returned when a guild has no feed configured.
var ErrNoURL = errors.New("calendar url is empty")

// Validators are the HTTP cache validators of the last good download.
type Validators struct {
	ETag         string
	LastModified string
}

// FetchResult is the outcome of one feed download.
type FetchResult struct {
	Body       []byte
	Validators Validators
	// NotModified is set on a 304; Body is nil and the cached text stays valid.
	NotModified bool
}

// Fetcher downloads iCalendar feeds with conditional requests and keeps the
// last good body per URL on disk when a cache directory is configured.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	log      zerolog.Logger
}

// NewFetcher creates a Fetcher. An empty cacheDir disables the disk cache.
func NewFetcher(client *http.Client, cacheDir string, log zerolog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir, log: log}
}

// Fetch downloads url, sending prev as If-None-Match / If-Modified-Since.
func (f *Fetcher) Fetch(ctx context.Context, url string, prev Validators) (FetchResult, error) {
	if strings.TrimSpace(url) == "" {
		return FetchResult{}, ErrNoURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if prev.ETag != "" {
		req.Header.Set("If-None-Match", prev.ETag)
	}
	if prev.LastModified != "" {
		req.Header.Set("If-Modified-Since", prev.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", RedactURL(url), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return FetchResult{}, fmt.Errorf("read %s: %w", RedactURL(url), err)
		}
		res := FetchResult{
			Body: body,
			Validators: Validators{
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			},
		}
		if err := f.saveCache(url, body); err != nil {
			f.log.Warn().Err(err).Str("url", RedactURL(url)).Msg("calendar cache save failed")
		}
		return res, nil
	case http.StatusNotModified:
		return FetchResult{NotModified: true, Validators: prev}, nil
	default:
		return FetchResult{}, fmt.Errorf("fetch %s: unexpected status %s", RedactURL(url), resp.Status)
	}
}

// Cached returns the last good body stored for url, if any.
func (f *Fetcher) Cached(url string) ([]byte, bool) {
	if f.cacheDir == "" || url == "" {
		return nil, false
	}
	body, err := os.ReadFile(f.cachePath(url))
	if err != nil || len(body) == 0 {
		return nil, false
	}
	return body, true
}

func (f *Fetcher) saveCache(url string, body []byte) error {
	if f.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(f.cacheDir, 0o700); err != nil {
		return err
	}
	path := f.cachePath(url)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f *Fetcher) cachePath(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8])+".ics")
}

// RedactURL hides the path and query of a feed URL, private calendar links
// carry their secret there.
func RedactURL(u string) string {
	i := strings.Index(u, "://")
	if i == -1 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j != -1 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/...(redacted)"
}
