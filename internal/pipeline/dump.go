package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/navieyes/internal/media"
	"github.com/rbright/navieyes/internal/session"
)

// dumpingUploader writes every successful response body to state/navieyes/debug.
type dumpingUploader struct {
	next   session.Uploader
	dir    string
	logger *slog.Logger
}

func (d *dumpingUploader) Upload(ctx context.Context, req media.UploadRequest) (media.Response, error) {
	resp, err := d.next.Upload(ctx, req)
	if err != nil {
		return resp, err
	}
	path, dumpErr := d.dump(resp)
	if d.logger != nil {
		if dumpErr != nil {
			d.logger.Warn("unable to write response dump", "error", dumpErr.Error())
		} else {
			d.logger.Debug("response dumped", "path", path, "content_type", resp.RawContentType)
		}
	}
	return resp, nil
}

func (d *dumpingUploader) dump(resp media.Response) (string, error) {
	dir := d.dir
	if dir == "" {
		var err error
		if dir, err = debugDir("debug"); err != nil {
			return "", err
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("response-%s%s", time.Now().Format("20060102-150405.000"), dumpExtension(resp)))
	if err := os.WriteFile(path, resp.Payload, 0o600); err != nil {
		return "", fmt.Errorf("write response dump %q: %w", path, err)
	}
	return path, nil
}

func dumpExtension(resp media.Response) string {
	switch resp.Type {
	case media.ContentJSON:
		return ".json"
	case media.ContentAudio:
		if resp.TransferEncoding == "base64" {
			return ".b64"
		}
		return media.ExtensionFor(resp.RawContentType)
	default:
		return ".bin"
	}
}
