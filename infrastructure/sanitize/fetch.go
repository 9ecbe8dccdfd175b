package sanitize

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/afero"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// DefaultFetchTimeout bounds one stylesheet request.
const DefaultFetchTimeout = 10 * time.Second

// ErrFetch indicates a stylesheet could not be retrieved.
var ErrFetch = errors.New("fetch stylesheet")

// Fetcher retrieves stylesheet text.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// HTTPFetcher fetches stylesheets over HTTP, reads file: URLs from a
// filesystem and decodes data: URLs locally.
type HTTPFetcher struct {
	client *resty.Client
	fs     afero.Fs
}

// NewHTTPFetcher creates an HTTPFetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "text/css,*/*;q=0.1")
	return &HTTPFetcher{client: client, fs: afero.NewOsFs()}
}

// WithFs returns a copy of f that reads file: URLs from fs.
func (f *HTTPFetcher) WithFs(fs afero.Fs) *HTTPFetcher {
	cp := *f
	cp.fs = fs
	return &cp
}

// Fetch returns the body of rawURL. Responses outside 2xx are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if strings.HasPrefix(strings.ToLower(rawURL), "data:") {
		return decodeDataURL(rawURL)
	}
	if strings.HasPrefix(strings.ToLower(rawURL), "file:") {
		return f.readFile(rawURL)
	}

	resp, err := f.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFetch, rawURL, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: %s: status %d", ErrFetch, rawURL, resp.StatusCode())
	}
	return decodeText(resp.Body(), resp.Header().Get("Content-Type"))
}

func (f *HTTPFetcher) readFile(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFetch, rawURL, err)
	}
	data, err := afero.ReadFile(f.fs, u.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFetch, rawURL, err)
	}
	return decodeText(data, "")
}

// decodeText converts body to UTF-8 using the declared or sniffed charset.
func decodeText(data []byte, contentType string) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("transcode from %s: %w", name, err)
	}
	return string(decoded), nil
}

// decodeDataURL returns the payload of a data: URL.
func decodeDataURL(rawURL string) (string, error) {
	meta, payload, ok := strings.Cut(rawURL[len("data:"):], ",")
	if !ok {
		return "", fmt.Errorf("%w: malformed data url", ErrFetch)
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", fmt.Errorf("%w: decode data url: %v", ErrFetch, err)
		}
		return decodeText(data, strings.TrimSuffix(meta, ";base64"))
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", fmt.Errorf("%w: decode data url: %v", ErrFetch, err)
	}
	return text, nil
}
