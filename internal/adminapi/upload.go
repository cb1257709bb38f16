package adminapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
)

// ProgressFunc receives the bytes sent so far out of total.
type ProgressFunc func(sent, total int64)

// Attachment is a file forwarded as one multipart part.
type Attachment struct {
	Filename string
	Data     []byte
}

func (a Attachment) Empty() bool { return len(a.Data) == 0 }

type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	fn    ProgressFunc
	once  sync.Once
}

func (p *progressReader) Read(b []byte) (int, error) {
	p.once.Do(func() { p.fn(0, p.total) })
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}

func multipartBody(parts map[string]Attachment, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	for name, a := range parts {
		if a.Empty() {
			continue
		}
		fw, err := mw.CreateFormFile(name, a.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(a.Data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *API) postMultipart(ctx context.Context, s Session, path string, parts map[string]Attachment, fields map[string]string, progress ProgressFunc, out any) error {
	buf, contentType, err := multipartBody(parts, fields)
	if err != nil {
		return fmt.Errorf("build %s upload: %w", path, err)
	}
	total := int64(buf.Len())
	var body io.Reader = buf
	if progress != nil {
		body = &progressReader{r: buf, total: total, fn: progress}
	}
	req, err := c.newRequest(ctx, s, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)
	return c.send(req, out)
}

// BulkUpload sends a spreadsheet of cards, and optionally a ZIP of photos
// named after the sheet's PHOTO column.
func (c *API) BulkUpload(ctx context.Context, s Session, table int64, sheet, photos Attachment, progress ProgressFunc) (*UploadResult, error) {
	if sheet.Empty() {
		return nil, fmt.Errorf("bulk upload: spreadsheet is empty")
	}
	var res UploadResult
	parts := map[string]Attachment{"file": sheet, "photos_zip": photos}
	if err := c.postMultipart(ctx, s, pathID("/api/table/%d/cards/bulk-upload/", table), parts, nil, progress, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReuploadImages replaces card photos from a ZIP. With status set, only
// cards in that status are considered.
func (c *API) ReuploadImages(ctx context.Context, s Session, table int64, status string, photos Attachment, progress ProgressFunc) (*UploadResult, error) {
	if photos.Empty() {
		return nil, fmt.Errorf("reupload images: archive is empty")
	}
	var fields map[string]string
	if status != "" {
		fields = map[string]string{"status": status}
	}
	var res UploadResult
	parts := map[string]Attachment{"photos_zip": photos}
	if err := c.postMultipart(ctx, s, pathID("/api/table/%d/cards/reupload-images/", table), parts, fields, progress, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
