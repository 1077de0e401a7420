package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"benchline/internal/domain"
)

// Disk writes attachments under Dir and serves them from BaseURL.
type Disk struct {
	Dir     string
	BaseURL string
	Now     func() time.Time
}

func NewDisk(dir, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if baseURL == "" {
		baseURL = "/files"
	}
	return &Disk{Dir: dir, BaseURL: baseURL}, nil
}

func (d *Disk) Upload(ctx context.Context, prefix, category string, up domain.Upload) (domain.Attachment, error) {
	if up.Body == nil {
		return domain.Attachment{}, errors.New("upload has no body")
	}
	id, name := objectName(prefix, category, up.Filename)
	full := filepath.Join(d.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return domain.Attachment{}, fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.Create(full)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("save file: %w", err)
	}
	n, err := io.Copy(dst, &ctxReader{ctx: ctx, r: up.Body})
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(full)
		return domain.Attachment{}, fmt.Errorf("write file: %w", err)
	}
	return domain.Attachment{
		ID:          id,
		Category:    category,
		URL:         joinURL(d.BaseURL, name),
		Filename:    up.Filename,
		ContentType: up.ContentType,
		SizeBytes:   n,
		UploadedAt:  stamp(d.Now),
	}, nil
}

// Delete removes the file; a file that is already gone is not an error.
func (d *Disk) Delete(_ context.Context, att domain.Attachment) error {
	name, err := objectFromURL(d.BaseURL, att.URL)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(d.Dir, filepath.FromSlash(name))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
