package devapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/listview"
	"github.com/phillip-england/cardsuite/internal/photo"
	"github.com/phillip-england/cardsuite/internal/reconcile"
	"github.com/phillip-england/cardsuite/internal/schema"
)

const (
	// photoColumn feeds a table's only image field when no column carries
	// the field's own name.
	photoColumn     = "PHOTO"
	maxReportErrors = 10
)

func readPart(r *http.Request, name string) ([]byte, string, error) {
	f, hdr, err := r.FormFile(name)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, hdr.Filename, nil
}

func (s *server) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload is too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid upload")
		return false
	}
	return true
}

func openArchive(data []byte, filename string) (*reconcile.PhotoArchive, error) {
	if !reconcile.IsPhotoArchive(filename) {
		return nil, reconcile.ErrNotArchive
	}
	return reconcile.OpenPhotoArchive(bytes.NewReader(data), int64(len(data)))
}

// storePhoto validates p and saves it under a fresh media name.
func (s *server) storePhoto(r *http.Request, table int64, p reconcile.Photo) (string, error) {
	raw, err := p.ReadAll(s.cfg.MaxPhotoBytes)
	if err != nil {
		return "", err
	}
	format, err := photo.Check(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Name, err)
	}
	name := fmt.Sprintf("cards/%d/%s%s", table, uuid.NewString(), p.Ext)
	if err := s.store.putMedia(r.Context(), name, "image/"+format, raw); err != nil {
		return "", err
	}
	return name, nil
}

// imageColumns maps each image field to its sheet column.
func imageColumns(sheet reconcile.Sheet, report reconcile.Report, fields []schema.Field) map[string]int {
	images := schema.ImageFields(fields)
	out := make(map[string]int, len(images))
	for _, f := range images {
		for _, m := range report.Matched {
			if m.Field == f {
				if idx, ok := sheet.Column(m.Header); ok {
					out[f] = idx
				}
			}
		}
	}
	if len(images) == 1 {
		if _, ok := out[images[0]]; !ok {
			if idx, ok := sheet.Column(photoColumn); ok {
				out[images[0]] = idx
			}
		}
	}
	return out
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func (s *server) bulkUpload(w http.ResponseWriter, r *http.Request) {
	table, ok := s.tableFromPath(w, r)
	if !ok {
		return
	}
	if !s.parseUpload(w, r) {
		return
	}
	data, filename, err := readPart(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Please select a file to upload")
		return
	}
	expected := schema.Names(table.Fields, true)
	report, sheet, err := reconcile.Inspect(bytes.NewReader(data), filename, expected)
	if err != nil {
		writeError(w, http.StatusBadRequest, sentence(err))
		return
	}
	if !report.OK() {
		writeError(w, http.StatusBadRequest, "No matching fields found. Expected: "+strings.Join(expected, ", "))
		return
	}

	var archive *reconcile.PhotoArchive
	if zipData, zipName, err := readPart(r, "photos_zip"); err == nil && len(zipData) > 0 {
		archive, err = openArchive(zipData, zipName)
		if err != nil {
			writeError(w, http.StatusBadRequest, sentence(err))
			return
		}
	} else if err != nil && !errors.Is(err, http.ErrMissingFile) {
		writeError(w, http.StatusBadRequest, "Invalid photos archive")
		return
	}

	imageCols := imageColumns(sheet, report, table.Fields)
	isImage := make(map[string]bool, len(imageCols))
	for f := range imageCols {
		isImage[f] = true
	}
	type column struct {
		field string
		idx   int
	}
	var textCols []column
	var matchedFields []string
	for _, m := range report.Matched {
		matchedFields = append(matchedFields, m.Field)
		if isImage[m.Field] {
			continue
		}
		if idx, ok := sheet.Column(m.Header); ok {
			textCols = append(textCols, column{field: m.Field, idx: idx})
		}
	}

	var rows []map[string]string
	var rowErrors []string
	photosMatched := 0
	for i, row := range sheet.Rows {
		if blankRow(row) {
			continue
		}
		line := i + 2
		fieldData := make(map[string]string, len(table.Fields))
		for _, c := range textCols {
			fieldData[c.field] = reconcile.CellValue(c.field, reconcile.Cell(row, c.idx))
		}
		for field, idx := range imageCols {
			ref := reconcile.Cell(row, idx)
			if ref == "" {
				fieldData[field] = ""
				continue
			}
			fieldData[field] = listview.PendingImagePrefix + ref
			p, found := archive.Lookup(ref)
			if !found {
				continue
			}
			name, err := s.storePhoto(r, table.ID, p)
			if err != nil {
				rowErrors = append(rowErrors, fmt.Sprintf("Row %d: %v", line, err))
				continue
			}
			fieldData[field] = name
			photosMatched++
		}
		rows = append(rows, fieldData)
	}
	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "The uploaded file has no data rows")
		return
	}
	if err := s.store.insertCards(r.Context(), table.ID, rows); err != nil {
		s.fail(w, r, "insert cards", err)
		return
	}
	s.logger.Info("bulk upload",
		zap.Int64("table", table.ID),
		zap.Int("cards", len(rows)),
		zap.Int("photos", photosMatched),
		zap.Int("errors", len(rowErrors)),
	)

	msg := fmt.Sprintf("Successfully imported %d cards", len(rows))
	if photosMatched > 0 {
		msg += fmt.Sprintf(" with %d photos", photosMatched)
	}
	writeOK(w, map[string]any{
		"message":        msg,
		"cards_created":  len(rows),
		"photos_matched": photosMatched,
		"matched_fields": matchedFields,
		"errors":         firstN(rowErrors, maxReportErrors),
		"error_count":    len(rowErrors),
	})
}

func firstN(items []string, n int) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}

// reuploadKey is the archive key that replaces a stored image value: the
// pending reference, or the stored file's base name.
func reuploadKey(value string) string {
	if ref, ok := strings.CutPrefix(value, listview.PendingImagePrefix); ok {
		return reconcile.PhotoKey(ref)
	}
	return reconcile.PhotoKey(value)
}

func (s *server) reuploadImages(w http.ResponseWriter, r *http.Request) {
	table, ok := s.tableFromPath(w, r)
	if !ok {
		return
	}
	images := schema.ImageFields(table.Fields)
	if len(images) == 0 {
		writeError(w, http.StatusBadRequest, "This table has no image fields")
		return
	}
	if !s.parseUpload(w, r) {
		return
	}
	zipData, zipName, err := readPart(r, "photos_zip")
	if err != nil || len(zipData) == 0 {
		writeError(w, http.StatusBadRequest, "Please select a ZIP file of images")
		return
	}
	archive, err := openArchive(zipData, zipName)
	if err != nil {
		writeError(w, http.StatusBadRequest, sentence(err))
		return
	}
	status, ok := parseStatusParam(r.FormValue("status"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	cards, err := s.store.cardsByIDs(r.Context(), table.ID, status, nil)
	if err != nil {
		s.fail(w, r, "load cards", err)
		return
	}

	matched, updated := 0, 0
	var problems []string
	for _, card := range cards {
		data := map[string]string(card.FieldData)
		changed := false
		for _, field := range images {
			value := data[field]
			if value == "" {
				continue
			}
			p, found := archive.Lookup(reuploadKey(value))
			if !found {
				continue
			}
			name, err := s.storePhoto(r, table.ID, p)
			if err != nil {
				problems = append(problems, err.Error())
				continue
			}
			if !strings.HasPrefix(value, listview.PendingImagePrefix) {
				_ = s.store.deleteMedia(r.Context(), value)
			}
			data[field] = name
			matched++
			changed = true
		}
		if !changed {
			continue
		}
		if err := s.store.setFieldData(r.Context(), card.ID, data); err != nil {
			s.fail(w, r, "update card images", err)
			return
		}
		updated++
	}
	if matched == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("No matching images found! ZIP has %d images.", archive.Len()))
		return
	}
	writeOK(w, map[string]any{
		"message":        fmt.Sprintf("Reuploaded %d images for %d cards!", matched, updated),
		"photos_matched": matched,
		"cards_updated":  updated,
		"errors":         firstN(problems, maxReportErrors),
		"error_count":    len(problems),
	})
}

func (s *server) media(w http.ResponseWriter, r *http.Request) {
	data, mime, err := s.store.getMedia(r.Context(), r.PathValue("name"))
	if err != nil {
		s.storeError(w, r, "Image", err)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}
