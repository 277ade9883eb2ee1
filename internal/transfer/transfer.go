// Package transfer uploads captured samples and reads the server's answer.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rbright/navieyes/internal/media"
	"github.com/rbright/navieyes/internal/version"
)

const acceptHeader = "application/json, audio/*;q=0.9, */*;q=0.1"

// Client performs one request per call; nothing is retried.
type Client struct {
	http     *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// New builds a client whose requests time out after timeout and whose
// response bodies are capped at maxBytes.
func New(timeout time.Duration, maxBytes int64, logger *slog.Logger) *Client {
	return &Client{
		http:     &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Upload posts the sample as a multipart form with one file part and waits
// for the complete response. Timeouts, transport failures, and non-2xx
// statuses wrap media.ErrNetwork. A cancelled ctx returns ctx.Err().
func (c *Client) Upload(ctx context.Context, req media.UploadRequest) (media.Response, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return media.Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, body)
	if err != nil {
		return media.Response{}, fmt.Errorf("%w: build request: %v", media.ErrNetwork, err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.do(ctx, httpReq)
	if err != nil {
		return media.Response{}, err
	}
	if c.logger != nil {
		c.logger.Debug("upload complete",
			"endpoint", req.Endpoint,
			"status", resp.StatusCode,
			"content_type", resp.RawContentType,
			"bytes", len(resp.Payload),
			"latency_ms", time.Since(started).Milliseconds(),
		)
	}
	return resp, nil
}

// Fetch downloads url with a GET under the same limits as Upload.
func (c *Client) Fetch(ctx context.Context, url string) (media.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return media.Response{}, fmt.Errorf("%w: build request: %v", media.ErrNetwork, err)
	}
	return c.do(ctx, httpReq)
}

func (c *Client) do(ctx context.Context, httpReq *http.Request) (media.Response, error) {
	httpReq.Header.Set("Accept", acceptHeader)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return media.Response{}, ctx.Err()
		}
		return media.Response{}, fmt.Errorf("%w: %s %s: %v", media.ErrNetwork, httpReq.Method, httpReq.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	limit := c.maxBytes
	if limit <= 0 {
		limit = 16 << 20
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		if ctx.Err() != nil {
			return media.Response{}, ctx.Err()
		}
		return media.Response{}, fmt.Errorf("%w: read response: %v", media.ErrNetwork, err)
	}
	if int64(len(payload)) > limit {
		return media.Response{}, fmt.Errorf("%w: response exceeds %d bytes", media.ErrNetwork, limit)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return media.Response{}, &StatusError{Code: resp.StatusCode, Body: snippet(payload)}
	}

	rawType := resp.Header.Get("Content-Type")
	return media.Response{
		URL:              resp.Request.URL.String(),
		Type:             media.Classify(rawType),
		RawContentType:   rawType,
		TransferEncoding: strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Transfer-Encoding"))),
		StatusCode:       resp.StatusCode,
		Payload:          payload,
	}, nil
}

// StatusError reports a non-2xx answer. It matches media.ErrNetwork.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: server returned %d", media.ErrNetwork, e.Code)
	}
	return fmt.Sprintf("%v: server returned %d: %s", media.ErrNetwork, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == media.ErrNetwork
}

// IsStatus reports whether err is a StatusError with code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}

// encodeForm builds the multipart body: plain fields in key order, then the file.
func encodeForm(req media.UploadRequest) (*bytes.Buffer, string, error) {
	file, err := os.Open(req.Sample.URI)
	if err != nil {
		return nil, "", fmt.Errorf("%w: open sample: %v", media.ErrEmptyCapture, err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	keys := make([]string, 0, len(req.Fields))
	for key := range req.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := form.WriteField(key, req.Fields[key]); err != nil {
			return nil, "", fmt.Errorf("write field %q: %w", key, err)
		}
	}

	fieldName := req.FieldName
	if fieldName == "" {
		fieldName = "file"
	}
	mimeType := req.Sample.MIMEType
	if mimeType == "" {
		mimeType = media.InferMIME(req.Sample.URI, req.Sample.Kind)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, filepath.Base(req.Sample.URI)))
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy sample: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return body, form.FormDataContentType(), nil
}

func snippet(payload []byte) string {
	const max = 200
	text := strings.ToValidUTF8(strings.TrimSpace(string(payload)), "")
	if runes := []rune(text); len(runes) > max {
		text = string(runes[:max]) + "..."
	}
	return text
}
