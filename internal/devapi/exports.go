package devapi

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/listview"
	"github.com/phillip-england/cardsuite/internal/schema"
)

var unsafeExportName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func (s *server) download(kind adminapi.DownloadKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table, ok := s.tableFromPath(w, r)
		if !ok {
			return
		}
		var in idsRequest
		if err := decodeBody(w, r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		status, ok := parseStatusParam(in.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		cards, err := s.store.cardsByIDs(r.Context(), table.ID, status, in.CardIDs)
		if err != nil {
			s.fail(w, r, "load cards for export", err)
			return
		}
		if len(cards) == 0 {
			writeError(w, http.StatusBadRequest, "No cards to download")
			return
		}

		var data []byte
		switch kind {
		case adminapi.DownloadImages:
			data, err = s.imagesZip(r, table, cards)
		case adminapi.DownloadXLSX:
			data, err = cardsWorkbook(table, cards)
		case adminapi.DownloadDocx:
			data, err = cardsDocument(table, cards)
		}
		if errors.Is(err, errNoImages) {
			writeError(w, http.StatusBadRequest, "No images found for the selected cards")
			return
		}
		if err != nil {
			s.fail(w, r, "export "+string(kind), err)
			return
		}
		s.logger.Info("cards exported", zap.Int64("table", table.ID), zap.String("kind", string(kind)), zap.Int("cards", len(cards)))

		name := adminapi.DownloadFilename(kind, s.store.now())
		w.Header().Set("Content-Type", kind.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
		_, _ = w.Write(data)
	}
}

var errNoImages = errors.New("no images in selection")

func extFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	return ""
}

// imagesZip packs each card's stored images, named after the card's
// display value and the field.
func (s *server) imagesZip(r *http.Request, table *adminapi.Table, cards []adminapi.Card) ([]byte, error) {
	images := schema.ImageFields(table.Fields)
	display := schema.DisplayField(table.Fields)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]int)
	written := 0
	for _, card := range cards {
		for _, field := range images {
			value := card.FieldData[field]
			if value == "" || strings.HasPrefix(value, listview.PendingImagePrefix) {
				continue
			}
			data, mime, err := s.store.getMedia(r.Context(), value)
			if err != nil {
				continue
			}
			ext := extFor(mime)
			if ext == "" {
				ext = path.Ext(value)
			}
			base := unsafeExportName.ReplaceAllString(card.FieldData[display], "_")
			if base == "" || base == "_" {
				base = fmt.Sprintf("card_%d", card.ID)
			}
			if len(images) > 1 {
				base += "_" + unsafeExportName.ReplaceAllString(field, "_")
			}
			used[base]++
			if n := used[base]; n > 1 {
				base = fmt.Sprintf("%s_%d", base, n)
			}
			fw, err := zw.Create(base + ext)
			if err != nil {
				return nil, err
			}
			if _, err := fw.Write(data); err != nil {
				return nil, err
			}
			written++
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if written == 0 {
		return nil, errNoImages
	}
	return buf.Bytes(), nil
}

func exportColumns(table *adminapi.Table) []string {
	return append([]string{"SR", "STATUS"}, schema.Names(table.Fields, true)...)
}

func exportRow(i int, card adminapi.Card, table *adminapi.Table) []string {
	row := []string{fmt.Sprint(i + 1), strings.ToUpper(string(card.Status))}
	for _, name := range schema.Names(table.Fields, true) {
		row = append(row, card.FieldData[name])
	}
	return row
}

func cardsWorkbook(table *adminapi.Table, cards []adminapi.Card) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	columns := exportColumns(table)
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	last, _ := excelize.ColumnNumberToName(len(columns))
	if err := f.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
		return nil, err
	}
	for i, c := range columns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, float64(schema.ColumnWidth(c))); err != nil {
			return nil, err
		}
	}
	for i, card := range cards {
		values := exportRow(i, card, table)
		row := make([]any, len(values))
		for j, v := range values {
			row[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

func docxText(b *bytes.Buffer, text string, bold bool) {
	b.WriteString(`<w:p><w:r>`)
	if bold {
		b.WriteString(`<w:rPr><w:b/></w:rPr>`)
	}
	b.WriteString(`<w:t xml:space="preserve">`)
	_ = xml.EscapeText(b, []byte(text))
	b.WriteString(`</w:t></w:r></w:p>`)
}

// cardsDocument renders the cards as one Word table.
func cardsDocument(table *adminapi.Table, cards []adminapi.Card) ([]byte, error) {
	var doc bytes.Buffer
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	docxText(&doc, table.Name, true)
	doc.WriteString(`<w:tbl><w:tblPr><w:tblBorders>`)
	for _, edge := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		doc.WriteString(`<w:` + edge + ` w:val="single" w:sz="4" w:space="0" w:color="999999"/>`)
	}
	doc.WriteString(`</w:tblBorders></w:tblPr>`)

	writeRow := func(cells []string, bold bool) {
		doc.WriteString(`<w:tr>`)
		for _, c := range cells {
			doc.WriteString(`<w:tc>`)
			docxText(&doc, c, bold)
			doc.WriteString(`</w:tc>`)
		}
		doc.WriteString(`</w:tr>`)
	}
	writeRow(exportColumns(table), true)
	for i, card := range cards {
		writeRow(exportRow(i, card, table), false)
	}
	doc.WriteString(`</w:tbl><w:sectPr/></w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct{ name, body string }{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRels},
		{"word/document.xml", doc.String()},
	}
	for _, p := range parts {
		fw, err := zw.Create(p.name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
