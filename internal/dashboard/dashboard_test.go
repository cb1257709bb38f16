package dashboard

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/phillip-england/cardsuite/internal/devapi"
)

const (
	testAdmin    = "admin"
	testPassword = "correct-horse-battery"
)

var csrfFieldPattern = regexp.MustCompile(`name="gorilla\.csrf\.Token" value="([^"]+)"`)

// browser drives the dashboard the way a user would: cookies are kept,
// redirects are not followed, and every form carries the last CSRF token
// the server rendered.
type browser struct {
	t      *testing.T
	client *http.Client
	base   string
	token  string
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	ctx := context.Background()
	apiHandler, closeStore, err := devapi.Open(ctx, devapi.Config{
		DBPath:        filepath.Join(t.TempDir(), "cardsuite.db"),
		AdminUsername: testAdmin,
		AdminPassword: testPassword,
	}, nil)
	if err != nil {
		t.Fatalf("open devapi: %v", err)
	}
	apiSrv := httptest.NewServer(apiHandler)

	handler, closeHub, err := New(Config{
		APIBaseURL: apiSrv.URL,
		CSRFKey:    "dashboard-test-key",
	}, nil)
	if err != nil {
		t.Fatalf("new dashboard: %v", err)
	}
	dashSrv := httptest.NewServer(handler)
	t.Cleanup(func() {
		dashSrv.Close()
		closeHub()
		apiSrv.Close()
		_ = closeStore()
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &browser{
		t:    t,
		base: dashSrv.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// sibling is a second browser on the same servers with its own cookies.
func (b *browser) sibling() *browser {
	b.t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		b.t.Fatalf("cookie jar: %v", err)
	}
	return &browser{
		t:    b.t,
		base: b.base,
		client: &http.Client{
			Jar:           jar,
			CheckRedirect: b.client.CheckRedirect,
		},
	}
}

func (b *browser) get(path string) (int, string) {
	b.t.Helper()
	resp, err := b.client.Get(b.base + path)
	if err != nil {
		b.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if m := csrfFieldPattern.FindSubmatch(body); m != nil {
		b.token = string(m[1])
	}
	return resp.StatusCode, string(body)
}

func (b *browser) post(path string, form url.Values) *http.Response {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if b.token != "" {
		form.Set(csrfFieldName, b.token)
	}
	resp, err := b.client.PostForm(b.base+path, form)
	if err != nil {
		b.t.Fatalf("POST %s: %v", path, err)
	}
	_ = resp.Body.Close()
	return resp
}

func (b *browser) postMultipart(path string, fields map[string]string, filename string, data []byte) *http.Response {
	b.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.WriteField(csrfFieldName, b.token)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		b.t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(data)
	if err := mw.Close(); err != nil {
		b.t.Fatalf("close multipart: %v", err)
	}
	resp, err := b.client.Post(b.base+path, mw.FormDataContentType(), &body)
	if err != nil {
		b.t.Fatalf("POST %s: %v", path, err)
	}
	_ = resp.Body.Close()
	return resp
}

// redirected asserts a See Other and returns the parsed Location.
func (b *browser) redirected(resp *http.Response) *url.URL {
	b.t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		b.t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		b.t.Fatalf("parse location: %v", err)
	}
	return loc
}

func (b *browser) login() {
	b.t.Helper()
	b.get("/login")
	loc := b.redirected(b.post("/login", url.Values{"username": {testAdmin}, "password": {testPassword}}))
	if loc.Path != "/clients" || loc.Query().Get("message") == "" {
		b.t.Fatalf("login redirect = %s", loc)
	}
}

func TestPagesRequireSession(t *testing.T) {
	b := newBrowser(t)
	for _, path := range []string{"/", "/clients", "/cards?table=1", "/profile"} {
		resp, err := b.client.Get(b.base + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
			t.Fatalf("GET %s = %d %q, want redirect to /login", path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	b := newBrowser(t)
	b.get("/login")
	loc := b.redirected(b.post("/login", url.Values{"username": {testAdmin}, "password": {"nope"}}))
	if loc.Path != "/login" || loc.Query().Get("error") == "" {
		t.Fatalf("redirect = %s, want /login with an error", loc)
	}
	if loc.Query().Get("username") != testAdmin {
		t.Fatalf("username not kept: %s", loc)
	}
}

func TestFormsWithoutCSRFTokenAreRejected(t *testing.T) {
	b := newBrowser(t)
	b.get("/login")
	b.token = ""
	resp := b.post("/login", url.Values{"username": {testAdmin}, "password": {testPassword}})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestLoginAndLogout(t *testing.T) {
	b := newBrowser(t)
	b.login()

	code, body := b.get("/clients?message=Welcome+back")
	if code != http.StatusOK {
		t.Fatalf("clients status = %d", code)
	}
	if !strings.Contains(body, "Welcome back") {
		t.Fatal("welcome toast missing")
	}

	loc := b.redirected(b.post("/logout", nil))
	if loc.Path != "/login" {
		t.Fatalf("logout redirect = %s", loc)
	}
	resp, err := b.client.Get(b.base + "/clients")
	if err != nil {
		t.Fatalf("GET /clients: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("after logout status = %d, want 302", resp.StatusCode)
	}
}

func TestClientCreateAndSelect(t *testing.T) {
	b := newBrowser(t)
	b.login()
	b.get("/clients")

	loc := b.redirected(b.post("/clients/save", url.Values{"name": {""}, "return": {"/clients?drawer=add"}}))
	if loc.Query().Get("error") == "" || loc.Query().Get("drawer") != "add" {
		t.Fatalf("blank name redirect = %s", loc)
	}

	loc = b.redirected(b.post("/clients/save", url.Values{
		"name":   {"Springfield High"},
		"email":  {"office@springfield.test"},
		"return": {"/clients?drawer=add"},
	}))
	id := loc.Query().Get("selected")
	if id == "" || loc.Query().Get("drawer") != "" || loc.Query().Get("message") == "" {
		t.Fatalf("save redirect = %s", loc)
	}

	code, body := b.get("/clients?selected=" + id)
	if code != http.StatusOK || !strings.Contains(body, "Springfield High") {
		t.Fatalf("clients page missing new client (status %d)", code)
	}

	code, body = b.get("/clients?selected=" + id + "&drawer=edit")
	if code != http.StatusOK || !strings.Contains(body, `value="office@springfield.test"`) {
		t.Fatalf("edit drawer missing client email (status %d)", code)
	}
}

func TestClientDeleteGoesThroughConfirm(t *testing.T) {
	b := newBrowser(t)
	b.login()
	b.get("/clients")
	loc := b.redirected(b.post("/clients/save", url.Values{"name": {"Shelbyville Prep"}, "return": {"/clients"}}))
	id := loc.Query().Get("selected")

	loc = b.redirected(b.post("/clients/delete", url.Values{"id": {id}, "name": {"Shelbyville Prep"}, "return": {"/clients?selected=" + id}}))
	token := loc.Query().Get("confirm")
	if token == "" {
		t.Fatalf("delete did not ask for confirmation: %s", loc)
	}
	_, body := b.get(loc.RequestURI())
	if !strings.Contains(body, "Delete Client") {
		t.Fatal("confirm modal not rendered")
	}

	loc = b.redirected(b.post("/confirm", url.Values{"token": {token}, "decision": {"cancel"}, "return": {"/clients"}}))
	_, body = b.get(loc.RequestURI())
	if !strings.Contains(body, "Shelbyville Prep") {
		t.Fatal("cancel removed the client")
	}

	loc = b.redirected(b.post("/clients/delete", url.Values{"id": {id}, "name": {"Shelbyville Prep"}, "return": {"/clients"}}))
	token = loc.Query().Get("confirm")
	loc = b.redirected(b.post("/confirm", url.Values{"token": {token}, "decision": {"confirm"}, "return": {"/clients"}}))
	if loc.Query().Get("message") == "" {
		t.Fatalf("confirm redirect = %s", loc)
	}
	_, body = b.get("/clients")
	if strings.Contains(body, "Shelbyville Prep") {
		t.Fatal("client still listed after delete")
	}

	loc = b.redirected(b.post("/confirm", url.Values{"token": {token}, "decision": {"confirm"}, "return": {"/clients"}}))
	if loc.Query().Get("info") == "" {
		t.Fatalf("replayed confirm = %s, want an expired notice", loc)
	}
}

func TestConfirmTokenBelongsToOpeningSession(t *testing.T) {
	owner := newBrowser(t)
	owner.login()
	other := owner.sibling()
	other.login()

	owner.get("/clients")
	loc := owner.redirected(owner.post("/clients/save", url.Values{"name": {"Capital City Tech"}, "return": {"/clients"}}))
	id := loc.Query().Get("selected")
	loc = owner.redirected(owner.post("/clients/delete", url.Values{"id": {id}, "name": {"Capital City Tech"}, "return": {"/clients"}}))
	token := loc.Query().Get("confirm")
	if token == "" {
		t.Fatalf("delete did not ask for confirmation: %s", loc)
	}

	_, body := other.get("/clients?confirm=" + url.QueryEscape(token))
	if strings.Contains(body, "Delete Client") {
		t.Fatal("another session was shown the confirm modal")
	}
	loc = other.redirected(other.post("/confirm", url.Values{"token": {token}, "decision": {"confirm"}, "return": {"/clients"}}))
	if loc.Query().Get("info") == "" || loc.Query().Get("message") != "" {
		t.Fatalf("foreign confirm = %s, want an expired notice", loc)
	}
	other.redirected(other.post("/confirm", url.Values{"token": {token}, "decision": {"cancel"}, "return": {"/clients"}}))

	_, body = owner.get("/clients")
	if !strings.Contains(body, "Capital City Tech") {
		t.Fatal("another session deleted the client")
	}
	loc = owner.redirected(owner.post("/confirm", url.Values{"token": {token}, "decision": {"confirm"}, "return": {"/clients"}}))
	if loc.Query().Get("message") == "" {
		t.Fatalf("owner confirm = %s", loc)
	}
}

// seedTable creates a client, a group and a table through the dashboard
// and returns the table id.
func (b *browser) seedTable() string {
	b.t.Helper()
	b.get("/clients")
	loc := b.redirected(b.post("/clients/save", url.Values{"name": {"Springfield High"}, "return": {"/clients"}}))
	clientID := loc.Query().Get("selected")

	b.get("/tables?client=" + clientID)
	loc = b.redirected(b.post("/groups/create", url.Values{"client_id": {clientID}, "name": {"2026 Batch"}, "return": {"/tables?client=" + clientID}}))
	groupID := loc.Query().Get("group")
	if groupID == "" {
		b.t.Fatalf("group redirect = %s", loc)
	}

	loc = b.redirected(b.post("/tables/save", url.Values{
		"group_id":   {groupID},
		"name":       {"Students"},
		"field_name": {"Name", "Roll No", "Photo"},
		"field_type": {"text", "number", "image"},
		"return":     {"/tables?client=" + clientID + "&group=" + groupID + "&drawer=add"},
	}))
	tableID := loc.Query().Get("selected")
	if tableID == "" {
		b.t.Fatalf("table redirect = %s", loc)
	}
	return tableID
}

func TestSchemaEditorRedrawsDraft(t *testing.T) {
	b := newBrowser(t)
	b.login()
	b.get("/tables")

	form := url.Values{
		"name":       {"Staff Cards"},
		"field_name": {"Name"},
		"field_type": {"text"},
		"new_name":   {"Blood Group"},
		"new_type":   {"text"},
		"op":         {"add"},
		"return":     {"/tables"},
	}
	form.Set(csrfFieldName, b.token)
	resp, err := b.client.PostForm(b.base+"/tables/editor", form)
	if err != nil {
		t.Fatalf("POST editor: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("editor status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `value="Blood Group"`) || !strings.Contains(string(body), `value="Staff Cards"`) {
		t.Fatal("draft not redrawn with the added field")
	}

	form.Set("new_name", "name")
	resp, err = b.client.PostForm(b.base+"/tables/editor", form)
	if err != nil {
		t.Fatalf("POST editor: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "form-error") {
		t.Fatal("duplicate field name was not reported")
	}
}

func TestCardLifecycle(t *testing.T) {
	b := newBrowser(t)
	b.login()
	tableID := b.seedTable()
	cards := "/cards?table=" + tableID + "&tab=pending"

	b.get(cards)
	loc := b.redirected(b.post("/cards/save", url.Values{
		"table":     {tableID},
		"f.Name":    {"Bart Simpson"},
		"f.Roll No": {"7"},
		"return":    {cards + "&drawer=add"},
	}))
	cardID := loc.Query().Get("highlight")
	if cardID == "" || loc.Query().Get("drawer") != "" {
		t.Fatalf("save card redirect = %s", loc)
	}
	code, body := b.get(loc.RequestURI())
	if code != http.StatusOK || !strings.Contains(strings.ToUpper(body), "BART SIMPSON") {
		t.Fatalf("pending tab missing new card (status %d)", code)
	}

	b.redirected(b.post("/cards/select", url.Values{"table": {tableID}, "tab": {"pending"}, "op": {"toggle"}, "id": {cardID}, "return": {cards}}))
	loc = b.redirected(b.post("/cards/action", url.Values{"table": {tableID}, "tab": {"pending"}, "action": {"verify"}, "return": {cards}}))
	if loc.Query().Get("message") == "" {
		t.Fatalf("verify redirect = %s", loc)
	}
	_, body = b.get("/cards?table=" + tableID + "&tab=verified")
	if !strings.Contains(strings.ToUpper(body), "BART SIMPSON") {
		t.Fatal("card not on the verified tab")
	}

	verified := "/cards?table=" + tableID + "&tab=verified"
	loc = b.redirected(b.post("/cards/action", url.Values{"table": {tableID}, "tab": {"verified"}, "action": {"delete"}, "ids": {cardID}, "return": {verified}}))
	token := loc.Query().Get("confirm")
	if token == "" {
		t.Fatalf("soft delete did not ask for confirmation: %s", loc)
	}
	b.get(loc.RequestURI())
	loc = b.redirected(b.post("/confirm", url.Values{"token": {token}, "decision": {"confirm"}, "return": {verified}}))
	if loc.Query().Get("message") == "" {
		t.Fatalf("confirm redirect = %s", loc)
	}
	_, body = b.get("/cards?table=" + tableID + "&tab=pool")
	if !strings.Contains(strings.ToUpper(body), "BART SIMPSON") {
		t.Fatal("deleted card not in the pool")
	}

	loc = b.redirected(b.post("/cards/action", url.Values{"table": {tableID}, "tab": {"approved"}, "action": {"delete"}, "ids": {cardID}, "return": {cards}}))
	if loc.Query().Get("error") == "" {
		t.Fatalf("approved delete redirect = %s, want an error", loc)
	}
}

func TestBulkUploadConfirmsBeforeCreatingCards(t *testing.T) {
	b := newBrowser(t)
	b.login()
	tableID := b.seedTable()
	cards := "/cards?table=" + tableID + "&tab=pending"

	f := excelize.NewFile()
	rows := [][]any{{"Name", "Roll No", "House"}, {"Lisa Simpson", 2, "Blue"}, {"Milhouse Van Houten", 3, "Red"}}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	sheet, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	b.get(cards)
	loc := b.redirected(b.postMultipart("/cards/upload", map[string]string{"table": tableID, "return": cards + "&panel=upload"}, "students.txt", sheet.Bytes()))
	if loc.Query().Get("error") == "" || loc.Query().Get("panel") != "upload" {
		t.Fatalf("wrong extension redirect = %s", loc)
	}

	loc = b.redirected(b.postMultipart("/cards/upload", map[string]string{"table": tableID, "return": cards + "&panel=upload"}, "students.xlsx", sheet.Bytes()))
	token := loc.Query().Get("confirm")
	if token == "" {
		t.Fatalf("upload did not ask for confirmation: %s", loc)
	}
	_, body := b.get(loc.RequestURI())
	if !strings.Contains(body, "students.xlsx") || !strings.Contains(body, "House") {
		t.Fatal("upload summary missing file name or ignored column")
	}
	_, body = b.get(cards)
	if strings.Contains(strings.ToUpper(body), "LISA SIMPSON") {
		t.Fatal("cards created before confirmation")
	}

	loc = b.redirected(b.post("/confirm", url.Values{"token": {token}, "decision": {"confirm"}, "return": {cards}}))
	if loc.Query().Get("message") == "" || loc.Query().Get("tab") != "pending" {
		t.Fatalf("confirm redirect = %s", loc)
	}
	_, body = b.get(cards)
	upper := strings.ToUpper(body)
	if !strings.Contains(upper, "LISA SIMPSON") || !strings.Contains(upper, "MILHOUSE VAN HOUTEN") {
		t.Fatal("uploaded cards missing from the pending tab")
	}
}

func TestDownloadRequiresDownloadableTab(t *testing.T) {
	b := newBrowser(t)
	b.login()
	tableID := b.seedTable()
	b.get("/cards?table=" + tableID + "&tab=pending")
	resp := b.post("/cards/download", url.Values{"table": {tableID}, "tab": {"pending"}, "kind": {"xlsx"}, "return": {"/cards?table=" + tableID}})
	loc := b.redirected(resp)
	if loc.Query().Get("error") == "" {
		t.Fatalf("pending download redirect = %s, want an error", loc)
	}
}

func TestSidebarToggle(t *testing.T) {
	b := newBrowser(t)
	b.login()
	b.get("/clients")
	b.redirected(b.post("/sidebar", url.Values{"return": {"/clients"}}))
	_, body := b.get("/clients")
	if !strings.Contains(body, "sidebar-collapsed") {
		t.Fatal("sidebar not collapsed after toggle")
	}
}

func TestReturnToOnlyAcceptsLocalPaths(t *testing.T) {
	cases := map[string]string{
		"":                               "/fallback",
		"https://evil.test/x":            "/fallback",
		"//evil.test/x":                  "/fallback",
		`/\evil.test`:                    "/fallback",
		"clients":                        "/fallback",
		"/clients?selected=4":            "/clients?selected=4",
		"/clients?message=hi&selected=4": "/clients?selected=4",
		"/cards?confirm=abc&table=2":     "/cards?table=2",
	}
	for raw, want := range cases {
		r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(url.Values{"return": {raw}}.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if got := returnTo(r, "/fallback"); got != want {
			t.Fatalf("returnTo(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestWithParams(t *testing.T) {
	got := withParams("/clients?drawer=add&selected=3", "drawer", "", "selected", "9")
	if got != "/clients?selected=9" {
		t.Fatalf("withParams = %q", got)
	}
	got = withParams("/cards", "table", "2", "tab", "pool")
	if got != "/cards?tab=pool&table=2" {
		t.Fatalf("withParams = %q", got)
	}
}

func TestPageURL(t *testing.T) {
	if got := pageURL("/clients?page=3&highlight=4&q=ann"); got != "/clients?q=ann&page=" {
		t.Fatalf("pageURL = %q", got)
	}
	if got := pageURL("/clients"); got != "/clients?page=" {
		t.Fatalf("pageURL = %q", got)
	}
}

func TestMediaURL(t *testing.T) {
	cases := map[string]string{
		"":                       "",
		"PENDING:0042.jpg":       "",
		"cards/1/a.png":          "/media/cards/1/a.png",
		"/media/cards/1/a.png":   "/media/cards/1/a.png",
		"https://cdn.test/a.png": "https://cdn.test/a.png",
	}
	for in, want := range cases {
		if got := mediaURL(in); got != want {
			t.Fatalf("mediaURL(%q) = %q, want %q", in, got, want)
		}
	}
	if pendingRef("PENDING:0042.jpg") != "0042.jpg" {
		t.Fatal("pendingRef did not strip the prefix")
	}
}
