package devapi

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/phillip-england/cardsuite/internal/adminapi"
	"github.com/phillip-england/cardsuite/internal/cardflow"
	"github.com/phillip-england/cardsuite/internal/listview"
	"github.com/phillip-england/cardsuite/internal/schema"
)

const (
	testAdmin    = "admin"
	testPassword = "correct-horse-battery"
)

type fixture struct {
	api     *adminapi.API
	session adminapi.Session
	url     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	handler, closeStore, err := Open(ctx, Config{
		DBPath:        ":memory:",
		AdminUsername: testAdmin,
		AdminPassword: testPassword,
	}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		_ = closeStore()
	})

	api := adminapi.New(srv.URL, srv.Client(), nil)
	session, _, err := api.Login(ctx, testAdmin, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return &fixture{api: api, session: session, url: srv.URL}
}

// seedTable creates a client, a group and an active table with a name, a
// roll number and a photo field.
func (f *fixture) seedTable(t *testing.T) *adminapi.Table {
	t.Helper()
	ctx := context.Background()
	client, _, err := f.api.CreateClient(ctx, f.session, adminapi.ClientInput{Name: "Springfield High", Email: "office@springfield.test"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	group, _, err := f.api.CreateGroup(ctx, f.session, client.ID, "2026 Batch")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	table, _, err := f.api.CreateTable(ctx, f.session, group.ID, adminapi.TableInput{
		Name: "Students",
		Fields: []schema.Field{
			{Name: "Name", Type: schema.TypeText},
			{Name: "Roll No", Type: schema.TypeNumber},
			{Name: "Photo", Type: schema.TypeImage},
		},
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return table
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func zipOf(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestOpenRequiresAdminCredentials(t *testing.T) {
	if _, _, err := Open(context.Background(), Config{DBPath: ":memory:"}, nil); err == nil {
		t.Fatalf("expected error without admin credentials")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.api.Login(context.Background(), testAdmin, "wrong-password")
	if !errors.Is(err, adminapi.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRequestsWithoutSessionAreRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.api.ListClients(context.Background(), adminapi.Session{})
	if !errors.Is(err, adminapi.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestWritesRequireCSRFToken(t *testing.T) {
	f := newFixture(t)
	noCSRF := adminapi.Session{ID: f.session.ID}
	_, _, err := f.api.CreateClient(context.Background(), noCSRF, adminapi.ClientInput{Name: "Acme"})
	var apiErr *adminapi.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}

	// reads pass without the header
	if _, err := f.api.ListClients(context.Background(), noCSRF); err != nil {
		t.Fatalf("list clients: %v", err)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.api.Logout(ctx, f.session); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.api.ListClients(ctx, f.session); !errors.Is(err, adminapi.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after logout, got %v", err)
	}
}

func TestClientLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, _, err := f.api.CreateClient(ctx, f.session, adminapi.ClientInput{
		Name:        "Acme School",
		Permissions: adminapi.Permissions{StaffList: true, CardApprove: true},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.Active() || !created.StaffList || !created.CardApprove || created.CardDelete {
		t.Fatalf("unexpected client %+v", created)
	}

	if _, _, err := f.api.CreateClient(ctx, f.session, adminapi.ClientInput{Name: "Acme School"}); err == nil {
		t.Fatalf("expected duplicate name to fail")
	}

	if _, err := f.api.UpdateClient(ctx, f.session, created.ID, adminapi.ClientInput{Name: "Acme Academy", City: "Pune"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := f.api.GetClient(ctx, f.session, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Acme Academy" || got.City != "Pune" {
		t.Fatalf("update not applied: %+v", got)
	}

	if _, _, err := f.api.ToggleClientStatus(ctx, f.session, created.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	got, _ = f.api.GetClient(ctx, f.session, created.ID)
	if got.Active() {
		t.Fatalf("expected client to be inactive after toggle")
	}

	staff, _, err := f.api.CreateStaff(ctx, f.session, adminapi.StaffInput{ClientID: created.ID, Name: "Edna", Email: "edna@acme.test"})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	list, err := f.api.ClientStaff(ctx, f.session, created.ID)
	if err != nil || len(list) != 1 || list[0].ID != staff.ID {
		t.Fatalf("client staff = %+v, %v", list, err)
	}

	if _, err := f.api.DeleteClient(ctx, f.session, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.api.GetClient(ctx, f.session, created.ID); !errors.Is(err, adminapi.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCardWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	table := f.seedTable(t)

	card, _, err := f.api.CreateCard(ctx, f.session, table.ID, map[string]string{"Name": "bart simpson", "Roll No": "7"})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	if card.Status != cardflow.Pending || card.FieldData["Name"] != "BART SIMPSON" {
		t.Fatalf("unexpected card %+v", card)
	}
	if _, _, err := f.api.CreateCard(ctx, f.session, table.ID, map[string]string{"Name": ""}); err == nil {
		t.Fatalf("expected empty card to be rejected")
	}

	if _, err := f.api.Transition(ctx, f.session, table.ID, cardflow.Pending, cardflow.Verify, []int64{card.ID}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := f.api.Transition(ctx, f.session, table.ID, cardflow.Verified, cardflow.Approve, []int64{card.ID}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, err := f.api.GetCard(ctx, f.session, card.ID)
	if err != nil || got.Status != cardflow.Approved {
		t.Fatalf("card = %+v, %v", got, err)
	}

	if _, err := f.api.UpdateCardField(ctx, f.session, card.ID, "Roll No", "8"); err != nil {
		t.Fatalf("update field: %v", err)
	}
	if _, err := f.api.UpdateCardField(ctx, f.session, card.ID, "Nope", "x"); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}

	counts, err := f.api.StatusCounts(ctx, f.session, table.ID)
	if err != nil {
		t.Fatalf("status counts: %v", err)
	}
	if counts.Approved != 1 || counts.Pending != 0 || counts.Total != 1 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestBulkTransitionsAndPoolDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	table := f.seedTable(t)

	var ids []int64
	for _, name := range []string{"Lisa", "Milhouse", "Nelson"} {
		card, _, err := f.api.CreateCard(ctx, f.session, table.ID, map[string]string{"Name": name})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		ids = append(ids, card.ID)
	}

	n, err := f.api.Transition(ctx, f.session, table.ID, cardflow.Pending, cardflow.Delete, ids)
	if err != nil || n != 3 {
		t.Fatalf("soft delete = %d, %v", n, err)
	}
	pool, err := f.api.AllCardIDs(ctx, f.session, table.ID, cardflow.Pool)
	if err != nil || len(pool) != 3 {
		t.Fatalf("pool ids = %v, %v", pool, err)
	}

	if _, err := f.api.Transition(ctx, f.session, table.ID, cardflow.Pool, cardflow.Retrieve, ids[:1]); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	n, err = f.api.Transition(ctx, f.session, table.ID, cardflow.Pool, cardflow.DeletePermanent, ids[1:])
	if err != nil || n != 2 {
		t.Fatalf("hard delete = %d, %v", n, err)
	}

	page, err := f.api.LoadCards(ctx, f.session, table.ID, cardflow.Pending, 0)
	if err != nil {
		t.Fatalf("load cards: %v", err)
	}
	if len(page.Cards) != 1 || page.Cards[0].ID != ids[0] || page.StatusCounts.Pool != 0 {
		t.Fatalf("page = %+v", page)
	}
}

func TestBulkUploadMatchesPhotos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	table := f.seedTable(t)

	sheet := []byte("NAME,ROLL NO,PHOTO\nHomer,1,homer.jpg\nMarge,2,marge\n,,\n")
	photos := zipOf(t, map[string][]byte{"pics/HOMER.png": pngBytes(t)})

	res, err := f.api.BulkUpload(ctx, f.session, table.ID,
		adminapi.Attachment{Filename: "students.csv", Data: sheet},
		adminapi.Attachment{Filename: "photos.zip", Data: photos},
		nil,
	)
	if err != nil {
		t.Fatalf("bulk upload: %v", err)
	}
	if res.CardsCreated != 2 || res.PhotosMatched != 1 {
		t.Fatalf("result = %+v", res)
	}

	page, err := f.api.LoadCards(ctx, f.session, table.ID, cardflow.Pending, 0)
	if err != nil {
		t.Fatalf("load cards: %v", err)
	}
	byName := map[string]adminapi.Card{}
	for _, c := range page.Cards {
		byName[c.FieldData["Name"]] = c
	}
	homer, marge := byName["HOMER"], byName["MARGE"]
	if !strings.HasPrefix(homer.FieldData["Photo"], "cards/") {
		t.Fatalf("homer photo = %q", homer.FieldData["Photo"])
	}
	if marge.FieldData["Photo"] != listview.PendingImagePrefix+"marge" {
		t.Fatalf("marge photo = %q", marge.FieldData["Photo"])
	}

	// the stored photo is served back under /media
	req, _ := http.NewRequest(http.MethodGet, f.url+"/media/"+homer.FieldData["Photo"], nil)
	req.AddCookie(&http.Cookie{Name: adminapi.SessionCookieName, Value: f.session.ID})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("media status=%d type=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	// a later zip fills the pending reference
	res, err = f.api.ReuploadImages(ctx, f.session, table.ID, "pending",
		adminapi.Attachment{Filename: "more.zip", Data: zipOf(t, map[string][]byte{"Marge.PNG": pngBytes(t)})},
		nil,
	)
	if err != nil {
		t.Fatalf("reupload: %v", err)
	}
	if res.PhotosMatched != 1 || res.CardsUpdated != 1 {
		t.Fatalf("reupload result = %+v", res)
	}
	got, _ := f.api.GetCard(ctx, f.session, marge.ID)
	if strings.HasPrefix(got.FieldData["Photo"], listview.PendingImagePrefix) {
		t.Fatalf("photo still pending: %q", got.FieldData["Photo"])
	}
}

func TestBulkUploadRejectsUnrelatedSheet(t *testing.T) {
	f := newFixture(t)
	table := f.seedTable(t)
	_, err := f.api.BulkUpload(context.Background(), f.session, table.ID,
		adminapi.Attachment{Filename: "other.csv", Data: []byte("COLOR,SHAPE\nred,circle\n")},
		adminapi.Attachment{},
		nil,
	)
	var apiErr *adminapi.APIError
	if !errors.As(err, &apiErr) || !strings.Contains(apiErr.Message, "No matching fields") {
		t.Fatalf("expected reconcile failure, got %v", err)
	}
}

func TestReuploadWithoutMatchesFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	table := f.seedTable(t)
	if _, _, err := f.api.CreateCard(ctx, f.session, table.ID, map[string]string{"Name": "Ned", "Photo": listview.PendingImagePrefix + "ned"}); err != nil {
		t.Fatalf("create card: %v", err)
	}
	_, err := f.api.ReuploadImages(ctx, f.session, table.ID, "",
		adminapi.Attachment{Filename: "x.zip", Data: zipOf(t, map[string][]byte{"maude.png": pngBytes(t)})},
		nil,
	)
	var apiErr *adminapi.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "No matching images found! ZIP has 1 images." {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDownloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	table := f.seedTable(t)

	_, err := f.api.BulkUpload(ctx, f.session, table.ID,
		adminapi.Attachment{Filename: "s.csv", Data: []byte("Name,Roll No,Photo\nApu,3,apu\nOtto,4,\n")},
		adminapi.Attachment{Filename: "p.zip", Data: zipOf(t, map[string][]byte{"apu.png": pngBytes(t)})},
		nil,
	)
	if err != nil {
		t.Fatalf("bulk upload: %v", err)
	}

	sheet, err := f.api.DownloadCards(ctx, f.session, table.ID, adminapi.DownloadXLSX, "pending", nil)
	if err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(sheet.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	rows, err := wb.GetRows(wb.GetSheetName(0))
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 || rows[0][2] != "Name" || rows[0][1] != "STATUS" {
		t.Fatalf("workbook rows = %v", rows)
	}
	if !strings.HasSuffix(sheet.Filename, ".xlsx") {
		t.Fatalf("filename = %q", sheet.Filename)
	}

	images, err := f.api.DownloadCards(ctx, f.session, table.ID, adminapi.DownloadImages, "pending", nil)
	if err != nil {
		t.Fatalf("images: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(images.Data), int64(len(images.Data)))
	if err != nil {
		t.Fatalf("open images zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "APU.png" {
		names := make([]string, 0, len(zr.File))
		for _, zf := range zr.File {
			names = append(names, zf.Name)
		}
		t.Fatalf("zip entries = %v", names)
	}

	doc, err := f.api.DownloadCards(ctx, f.session, table.ID, adminapi.DownloadDocx, "pending", nil)
	if err != nil {
		t.Fatalf("docx: %v", err)
	}
	dr, err := zip.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		t.Fatalf("open docx: %v", err)
	}
	var body string
	for _, zf := range dr.File {
		if zf.Name != "word/document.xml" {
			continue
		}
		rc, _ := zf.Open()
		raw, _ := io.ReadAll(rc)
		rc.Close()
		body = string(raw)
	}
	if !strings.Contains(body, "OTTO") || !strings.Contains(body, "Students") {
		t.Fatalf("document body missing card rows: %s", body)
	}

	_, err = f.api.DownloadCards(ctx, f.session, table.ID, adminapi.DownloadXLSX, "approved", nil)
	var apiErr *adminapi.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "No cards to download" {
		t.Fatalf("expected empty selection error, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	table := f.seedTable(t)
	if _, _, err := f.api.CreateCard(ctx, f.session, table.ID, map[string]string{"Name": "Krusty", "Roll No": "42"}); err != nil {
		t.Fatalf("create card: %v", err)
	}

	hits, err := f.api.SearchCards(ctx, f.session, table.ID, "krus")
	if err != nil {
		t.Fatalf("search cards: %v", err)
	}
	if len(hits) != 1 || hits[0].MatchedField != "Name" || hits[0].DisplayName != "KRUSTY" {
		t.Fatalf("hits = %+v", hits)
	}

	results, err := f.api.GlobalSearch(ctx, f.session, "spring", "all")
	if err != nil {
		t.Fatalf("global search: %v", err)
	}
	if len(results) == 0 || results[0].Type != "client" || !strings.HasPrefix(results[0].URL, "/clients") {
		t.Fatalf("results = %+v", results)
	}

	results, err = f.api.GlobalSearch(ctx, f.session, "krusty", "card")
	if err != nil {
		t.Fatalf("global card search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("card results = %+v", results)
	}
	link, err := url.Parse(results[0].URL)
	if err != nil {
		t.Fatalf("parse card url %q: %v", results[0].URL, err)
	}
	if link.Path != "/cards" || link.Query().Get("table") != strconv.FormatInt(table.ID, 10) || link.Query().Get("tab") != string(cardflow.Pending) {
		t.Fatalf("card url = %q", results[0].URL)
	}
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.api.UpdateProfile(ctx, f.session, adminapi.ProfileInput{Name: "Seymour", Email: "skinner@springfield.test"}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	p, err := f.api.Profile(ctx, f.session)
	if err != nil || p.Name != "Seymour" || p.Username != testAdmin {
		t.Fatalf("profile = %+v, %v", p, err)
	}

	url, _, err := f.api.UploadProfileImage(ctx, f.session, adminapi.Attachment{Filename: "me.png", Data: pngBytes(t)})
	if err != nil || !strings.HasPrefix(url, "/media/profile/") {
		t.Fatalf("upload image = %q, %v", url, err)
	}
	if _, err := f.api.RemoveProfileImage(ctx, f.session); err != nil {
		t.Fatalf("remove image: %v", err)
	}

	_, err = f.api.ChangePassword(ctx, f.session, adminapi.PasswordChange{Current: "nope", New: "another-long-pass", Confirm: "another-long-pass"})
	if err == nil {
		t.Fatalf("expected wrong current password to fail")
	}
	if _, err := f.api.ChangePassword(ctx, f.session, adminapi.PasswordChange{Current: testPassword, New: "another-long-pass", Confirm: "another-long-pass"}); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, _, err := f.api.Login(ctx, testAdmin, "another-long-pass"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
