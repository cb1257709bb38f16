package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/cardflow"
	"github.com/phillip-england/cardsuite/internal/drawer"
	"github.com/phillip-england/cardsuite/internal/livehub"
	"github.com/phillip-england/cardsuite/internal/reconcile"
	"github.com/phillip-england/cardsuite/internal/schema"
	"github.com/phillip-england/cardsuite/internal/selection"
	"github.com/phillip-england/cardsuite/internal/toast"
)

const progressInterval = 250 * time.Millisecond

// uploadSlot keeps one parked bulk upload per session; a newer upload
// replaces the older one and frees its file bytes.
const uploadSlot = "upload"

var errNoFile = errors.New("no file uploaded")

// uploadSummary is what the upload confirm modal shows before anything is
// sent to the admin API.
type uploadSummary struct {
	Filename        string
	Rows            int
	Matched         []reconcile.Matched
	Missing         []string
	Ignored         []string
	PhotosName      string
	Photos          int
	PhotoColumn     string
	PhotoMatched    int
	PhotoReferenced int
}

type hubIDKey struct{}

func withHubID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, hubIDKey{}, id)
}

func hubIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(hubIDKey{}).(string)
	return id
}

// limitBody caps request bodies before anything parses a form.
func (s *server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
		next.ServeHTTP(w, r)
	})
}

func readPart(r *http.Request, name string) (adminapi.Attachment, error) {
	f, header, err := r.FormFile(name)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return adminapi.Attachment{}, errNoFile
		}
		return adminapi.Attachment{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return adminapi.Attachment{}, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return adminapi.Attachment{}, errNoFile
	}
	return adminapi.Attachment{Filename: header.Filename, Data: data}, nil
}

// progressReporter streams upload progress toasts to one websocket,
// at most every progressInterval.
type progressReporter struct {
	hub     *livehub.Hub
	id      string
	message string
	start   time.Time

	mu   sync.Mutex
	last time.Time
}

func (s *server) newProgress(ctx context.Context, message string) *progressReporter {
	p := &progressReporter{hub: s.hub, id: hubIDFrom(ctx), message: message, start: time.Now()}
	p.hub.SendTo(p.id, livehub.Event{Type: livehub.EventProgress, Data: toast.Indeterminate(message)})
	return p
}

func (p *progressReporter) report(sent, total int64) {
	if p.id == "" {
		return
	}
	now := time.Now()
	p.mu.Lock()
	due := now.Sub(p.last) >= progressInterval || sent >= total
	if due {
		p.last = now
	}
	p.mu.Unlock()
	if due {
		p.hub.SendTo(p.id, livehub.Event{Type: livehub.EventProgress, Data: toast.Measure(p.message, sent, total, now.Sub(p.start))})
	}
}

func (p *progressReporter) done() {
	p.hub.SendTo(p.id, livehub.Event{Type: livehub.EventProgress, Data: toast.Progress{Message: p.message, Percent: 100, Done: true}})
}

// photoColumn picks the sheet column that names photos: the header matched
// to an image field, or PHOTO when the table has exactly one image field.
func photoColumn(report reconcile.Report, fields []schema.Field) string {
	images := schema.ImageFields(fields)
	for _, m := range report.Matched {
		for _, name := range images {
			if m.Field == name {
				return m.Header
			}
		}
	}
	if len(images) == 1 {
		return "PHOTO"
	}
	return ""
}

// inspectUpload reconciles a bulk upload against the table and parks it
// behind a confirm modal showing the result.
func (s *server) inspectUpload(w http.ResponseWriter, r *http.Request) {
	tableID := formID(r, "table")
	back := returnTo(r, "/cards?table="+idString(tableID))
	retry := withParams(back, "panel", "upload")
	sess := sessionOf(r)

	sheet, err := readPart(r, "file")
	if err != nil {
		s.finish(w, r, retry, toast.Error("Please select a spreadsheet to upload"))
		return
	}
	if !reconcile.IsSpreadsheet(sheet.Filename) {
		s.finish(w, r, retry, toast.Error("Please select an Excel (.xlsx/.xls) or CSV file"))
		return
	}
	photos, err := readPart(r, "photos_zip")
	if err != nil && !errors.Is(err, errNoFile) {
		s.finish(w, r, retry, toast.Error("Unable to read the photos file"))
		return
	}
	if !photos.Empty() && !reconcile.IsPhotoArchive(photos.Filename) {
		s.finish(w, r, retry, toast.Error("Photos must be uploaded as a ZIP file"))
		return
	}

	table, err := s.api.GetTable(r.Context(), sess, tableID)
	if err != nil {
		s.failed(w, r, back, err, "Unable to load table")
		return
	}
	report, parsed, err := reconcile.Inspect(bytes.NewReader(sheet.Data), sheet.Filename, schema.Names(table.Fields, true))
	if err != nil {
		s.finish(w, r, retry, toast.FromError(err, "Unable to read the spreadsheet"))
		return
	}
	if !report.OK() {
		s.finish(w, r, retry, toast.Error("None of the columns match this table's fields: "+strings.Join(report.Missing, ", ")))
		return
	}

	summary := &uploadSummary{
		Filename: sheet.Filename,
		Rows:     report.DataRowCount,
		Matched:  report.Matched,
		Missing:  report.Missing,
		Ignored:  report.Ignored,
	}
	if !photos.Empty() {
		archive, err := reconcile.OpenPhotoArchive(bytes.NewReader(photos.Data), int64(len(photos.Data)))
		if err != nil {
			s.finish(w, r, retry, toast.FromError(err, "Unable to open the photos ZIP"))
			return
		}
		summary.PhotosName = photos.Filename
		summary.Photos = archive.Len()
		summary.PhotoColumn = photoColumn(report, table.Fields)
		summary.PhotoMatched, summary.PhotoReferenced = archive.Coverage(parsed, summary.PhotoColumn)
	}

	s.logger.Info("upload inspected",
		zap.Int64("table", tableID),
		zap.String("file", sheet.Filename),
		zap.Int("rows", summary.Rows),
		zap.Int("matched_columns", len(summary.Matched)),
		zap.Int("photos", summary.Photos),
	)
	s.askConfirm(w, r, drawer.Request{
		Title:   "Confirm Upload",
		Message: fmt.Sprintf("Upload %d row(s) into %s?", summary.Rows, table.Name),
		Return:  withParams(back, "panel", "", "tab", string(cardflow.Pending)),
		Detail:  summary,
		Slot:    uploadSlot,
	}, func(ctx context.Context) (string, error) {
		progress := s.newProgress(ctx, "Uploading "+sheet.Filename)
		res, err := s.api.BulkUpload(ctx, sess, tableID, sheet, photos, progress.report)
		progress.done()
		if err != nil {
			return "", err
		}
		s.refresh(livehub.TableTopic(tableID))
		return orDefault(res.Message, fmt.Sprintf("%d card(s) created", res.CardsCreated)), nil
	})
}

// reuploadImages replaces card photos from a ZIP without a confirm step.
func (s *server) reuploadImages(w http.ResponseWriter, r *http.Request) {
	tableID := formID(r, "table")
	back := returnTo(r, "/cards?table="+idString(tableID))
	retry := withParams(back, "panel", "reupload")

	photos, err := readPart(r, "photos_zip")
	if err != nil {
		s.finish(w, r, retry, toast.Error("Please select a ZIP of photos"))
		return
	}
	if !reconcile.IsPhotoArchive(photos.Filename) {
		s.finish(w, r, retry, toast.Error("Photos must be uploaded as a ZIP file"))
		return
	}
	archive, err := reconcile.OpenPhotoArchive(bytes.NewReader(photos.Data), int64(len(photos.Data)))
	if err != nil {
		s.finish(w, r, retry, toast.FromError(err, "Unable to open the photos ZIP"))
		return
	}
	if archive.Len() == 0 {
		s.finish(w, r, retry, toast.Error("The ZIP file has no images"))
		return
	}

	var status string
	if tab, ok := cardflow.ParseStatus(r.FormValue("tab")); ok {
		status = string(tab)
	}
	ctx := withHubID(r.Context(), r.FormValue("hub_id"))
	progress := s.newProgress(ctx, "Uploading "+photos.Filename)
	res, err := s.api.ReuploadImages(ctx, sessionOf(r), tableID, status, photos, progress.report)
	progress.done()
	if err != nil {
		s.failed(w, r, retry, err, "Image reupload failed")
		return
	}
	s.refresh(livehub.TableTopic(tableID))
	s.finish(w, r, withParams(back, "panel", ""), toast.Success(orDefault(res.Message, fmt.Sprintf("%d card(s) updated", res.CardsUpdated))))
}

// downloadCards streams an export of the tab's selection, or of the rows
// on screen when nothing is selected.
func (s *server) downloadCards(w http.ResponseWriter, r *http.Request) {
	tableID := formID(r, "table")
	tab := tabOf(r.FormValue("tab"))
	back := returnTo(r, "/cards?table="+idString(tableID)+"&tab="+string(tab))
	sess := sessionOf(r)

	kind, ok := adminapi.ParseDownloadKind(r.FormValue("kind"))
	if !ok {
		s.finish(w, r, back, toast.Error("Unknown download format"))
		return
	}
	var (
		ids  []int64
		gate selection.CardGate
	)
	s.picks.with(pickKey(sess.ID, tableID, tab), func(m *selection.Multi) {
		gate = selection.GateCards(tab, m.Count())
		for _, id := range m.Targets() {
			ids = append(ids, parseID(id))
		}
	})
	if !gate.Downloadable {
		s.finish(w, r, back, toast.Error(tab.Label()+" cards cannot be downloaded"))
		return
	}

	file, err := s.api.DownloadCards(r.Context(), sess, tableID, kind, string(tab), ids)
	if err != nil {
		s.failed(w, r, back, err, "Download failed")
		return
	}
	s.logger.Info("cards downloaded",
		zap.Int64("table", tableID),
		zap.String("kind", string(kind)),
		zap.Int("cards", len(ids)),
		zap.Int("bytes", len(file.Data)),
	)
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	_, _ = w.Write(file.Data)
}
