package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

type DownloadKind string

const (
	DownloadImages DownloadKind = "images"
	DownloadDocx   DownloadKind = "docx"
	DownloadXLSX   DownloadKind = "xlsx"
)

func ParseDownloadKind(raw string) (DownloadKind, bool) {
	switch k := DownloadKind(raw); k {
	case DownloadImages, DownloadDocx, DownloadXLSX:
		return k, true
	}
	return "", false
}

func (k DownloadKind) Ext() string {
	if k == DownloadImages {
		return "zip"
	}
	return string(k)
}

func (k DownloadKind) ContentType() string {
	switch k {
	case DownloadDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case DownloadXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/zip"
}

func (k DownloadKind) endpoint() string {
	if k == DownloadImages {
		return "download-images"
	}
	return "download-" + string(k)
}

// DownloadFilename names an export taken at now, e.g. images_20240131_154500.zip.
func DownloadFilename(kind DownloadKind, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", kind, now.Format("20060102_150405"), kind.Ext())
}

// Download is an exported file ready to stream to the browser.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DownloadCards exports ids, or every card in status when ids is empty.
func (c *API) DownloadCards(ctx context.Context, s Session, table int64, kind DownloadKind, status string, ids []int64) (*Download, error) {
	body, err := json.Marshal(map[string]any{"card_ids": ids, "status": status})
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/api/table/%d/cards/%s/", table, kind.endpoint())
	req, err := c.newRequest(ctx, s, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", kind.ContentType()+", application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("admin api unreachable", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("download %s: %w", kind, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s download: %w", kind, err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if resp.StatusCode >= http.StatusBadRequest || mediaType == "application/json" {
		if err := decodeEnvelope(resp.StatusCode, raw, nil); err != nil {
			return nil, err
		}
		return nil, &APIError{Status: http.StatusBadGateway, Message: "Download failed"}
	}

	name := DownloadFilename(kind, time.Now())
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return &Download{Filename: name, ContentType: kind.ContentType(), Data: raw}, nil
}

// Media fetches a stored image by the name the admin API gave it, such as
// a card photo value or a profile image path.
func (c *API) Media(ctx context.Context, s Session, name string) (*Download, error) {
	name = strings.TrimLeft(name, "/")
	if name == "" || strings.Contains(name, "..") {
		return nil, ErrNotFound
	}
	req, err := c.newRequest(ctx, s, http.MethodGet, "/media/"+name, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if err := decodeEnvelope(resp.StatusCode, raw, nil); err != nil {
			return nil, err
		}
	}
	return &Download{Filename: path.Base(name), ContentType: resp.Header.Get("Content-Type"), Data: raw}, nil
}
