package clientapp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/phillip-england/hrsuite/internal/devapi"
	"github.com/phillip-england/hrsuite/internal/hrapi"
	"github.com/phillip-england/hrsuite/internal/session"
	"github.com/phillip-england/hrsuite/internal/spreadsheet"
	"github.com/phillip-england/hrsuite/internal/storage"
)

const (
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "admin-pass"
	testPassword      = "secret1"
)

type harness struct {
	t   *testing.T
	api *devapi.Server
	db  *storage.DB
	web *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	api, err := devapi.New(devapi.Config{
		SigningKey:    []byte("test-signing-key"),
		AdminEmail:    testAdminEmail,
		AdminPassword: testAdminPassword,
		Location:      time.UTC,
	}, logger)
	if err != nil {
		t.Fatalf("dev api: %v", err)
	}
	apiSrv := httptest.NewServer(api.Handler())
	t.Cleanup(apiSrv.Close)

	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	handler, err := NewHandler(Deps{
		APIBaseURL: apiSrv.URL,
		APIClient:  apiSrv.Client(),
		Storage:    db,
		Logger:     logger,
		Location:   time.UTC,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	web := httptest.NewServer(handler)
	t.Cleanup(web.Close)

	return &harness{t: t, api: api, db: db, web: web}
}

func (h *harness) addEmployee(name, email string) {
	h.t.Helper()
	if _, err := h.api.AddAccount(devapi.Account{Name: name, Email: email, Password: testPassword, Role: "employee"}); err != nil {
		h.t.Fatalf("add employee: %v", err)
	}
}

type testBrowser struct {
	h      *harness
	jar    *cookiejar.Jar
	client *http.Client
	csrf   string
}

func (h *harness) browser() *testBrowser {
	jar, _ := cookiejar.New(nil)
	return &testBrowser{h: h, jar: jar, client: &http.Client{Jar: jar}}
}

type page struct {
	status int
	path   string
	query  url.Values
	doc    *goquery.Document
}

func (p page) text(selector string) string {
	return strings.TrimSpace(p.doc.Find(selector).Text())
}

func (p page) disabled(selector string) bool {
	_, ok := p.doc.Find(selector).Attr("disabled")
	return ok
}

func (b *testBrowser) read(resp *http.Response, err error) page {
	b.h.t.Helper()
	if err != nil {
		b.h.t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		b.h.t.Fatalf("parse html: %v", err)
	}
	if token, ok := doc.Find(`input[name="csrf_token"]`).First().Attr("value"); ok && token != "" {
		b.csrf = token
	}
	return page{status: resp.StatusCode, path: resp.Request.URL.Path, query: resp.Request.URL.Query(), doc: doc}
}

func (b *testBrowser) get(path string) page {
	b.h.t.Helper()
	return b.read(b.client.Get(b.h.web.URL + path))
}

func (b *testBrowser) token() string {
	if b.csrf == "" {
		b.get("/")
	}
	return b.csrf
}

func (b *testBrowser) post(path string, form url.Values) page {
	b.h.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", b.token())
	return b.read(b.client.PostForm(b.h.web.URL+path, form))
}

func (b *testBrowser) login(email, password string) page {
	b.h.t.Helper()
	return b.post("/", url.Values{"email": {email}, "password": {password}})
}

func (b *testBrowser) storedKeys() []string {
	b.h.t.Helper()
	u, _ := url.Parse(b.h.web.URL)
	for _, c := range b.jar.Cookies(u) {
		if c.Name == browserCookieName {
			keys, err := b.h.db.Browser(c.Value).Keys(context.Background())
			if err != nil {
				b.h.t.Fatalf("keys: %v", err)
			}
			return keys
		}
	}
	b.h.t.Fatalf("browser cookie not set")
	return nil
}

func here() url.Values {
	return url.Values{"lat": {"40.7128"}, "lng": {"-74.0060"}, "accuracy": {"10"}}
}

func TestGuardsRedirectByRole(t *testing.T) {
	h := newHarness(t)
	h.addEmployee("Emp One", "emp@example.com")

	anon := h.browser()
	if p := anon.get("/attendance"); p.path != "/" || p.doc.Find("#login-button").Length() != 1 {
		t.Fatalf("expected anonymous browser on login page, got %s", p.path)
	}
	if p := anon.get("/no-such-page"); p.path != "/" {
		t.Fatalf("expected unknown path to land on login, got %s", p.path)
	}

	admin := h.browser()
	if p := admin.login(testAdminEmail, testAdminPassword); p.path != "/dashboard" || p.doc.Find("#stat-total").Length() != 1 {
		t.Fatalf("expected admin dashboard after login, got %s", p.path)
	}
	if p := admin.get("/"); p.path != "/dashboard" {
		t.Fatalf("expected signed-in admin to skip login, got %s", p.path)
	}
	if p := admin.get("/employees"); p.path != "/employees" || p.doc.Find(`a[href="/office-location"]`).Length() != 1 {
		t.Fatalf("expected admin to reach employees with admin nav, got %s", p.path)
	}

	emp := h.browser()
	p := emp.login("emp@example.com", testPassword)
	if p.path != "/dashboard" || p.doc.Find("#checkin-button").Length() != 1 {
		t.Fatalf("expected employee attendance dashboard, got %s", p.path)
	}
	if p.doc.Find(`a[href="/employees"]`).Length() != 0 {
		t.Fatalf("employee nav must not link admin pages")
	}
	for _, path := range []string{"/employees", "/admin/attendance", "/leaves/manage", "/office-location"} {
		if p := emp.get(path); p.path != "/dashboard" {
			t.Fatalf("expected %s to bounce employee to dashboard, got %s", path, p.path)
		}
	}
}

func TestRejectedLoginStoresNothing(t *testing.T) {
	h := newHarness(t)
	b := h.browser()

	p := b.login(testAdminEmail, "wrong-password")
	if p.path != "/" || p.status != http.StatusOK {
		t.Fatalf("expected login page to re-render, got %d %s", p.status, p.path)
	}
	if got := p.text(".alert-error"); got != "Invalid email or password" {
		t.Fatalf("unexpected error %q", got)
	}
	if v, _ := p.doc.Find(`input[name="email"]`).Attr("value"); v != testAdminEmail {
		t.Fatalf("expected email to be kept, got %q", v)
	}
	if keys := b.storedKeys(); !slices.Equal(keys, []string{csrfStorageKey}) {
		t.Fatalf("expected only the csrf token in storage, got %v", keys)
	}
}

func TestPostWithoutCSRFTokenIsRefused(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.get("/")
	resp, err := b.client.PostForm(h.web.URL+"/", url.Values{"email": {testAdminEmail}, "password": {testAdminPassword}})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if keys := b.storedKeys(); slices.Contains(keys, session.KeyAccessToken) {
		t.Fatalf("a refused post must not sign in")
	}
}

func TestRegisterThenLogin(t *testing.T) {
	h := newHarness(t)
	b := h.browser()

	p := b.post("/register", url.Values{"name": {"Ada"}, "email": {"ada@example.com"}, "password": {"123"}, "role": {"employee"}})
	if p.path != "/register" || p.text(".alert-error") == "" {
		t.Fatalf("expected short password to be refused inline, got %s", p.path)
	}

	p = b.post("/register", url.Values{"name": {"Ada"}, "email": {"ada@example.com"}, "password": {testPassword}, "role": {"employee"}})
	if p.path != "/welcome" || !strings.Contains(p.text(".alert-success"), "ada@example.com") {
		t.Fatalf("expected welcome page, got %s %q", p.path, p.text(".alert-success"))
	}
	if slices.Contains(b.storedKeys(), session.KeyAccessToken) {
		t.Fatalf("registering must not sign in")
	}
	if p := b.login("ada@example.com", testPassword); p.path != "/dashboard" {
		t.Fatalf("expected new account to sign in, got %s", p.path)
	}
}

func TestCheckInAndOut(t *testing.T) {
	h := newHarness(t)
	h.api.SetOffice(40.7128, -74.0060, 100)
	h.addEmployee("Emp One", "emp@example.com")
	b := h.browser()
	b.login("emp@example.com", testPassword)

	p := b.get("/attendance")
	if p.disabled("#checkin-button") || !p.disabled("#checkout-button") {
		t.Fatalf("expected only check-in to be enabled")
	}

	p = b.post("/attendance/checkin", here())
	if !strings.HasPrefix(p.text(".alert-success"), "Check-in successful! Distance: 0.00m, Within Radius: Yes") {
		t.Fatalf("unexpected confirmation %q (error %q)", p.text(".alert-success"), p.text(".alert-error"))
	}
	if !p.disabled("#checkin-button") || p.disabled("#checkout-button") {
		t.Fatalf("expected only check-out to be enabled after check-in")
	}
	if got := p.text("#attendance-phase"); got != "Status: Checked in" {
		t.Fatalf("unexpected phase %q", got)
	}

	p = b.post("/attendance/checkin", here())
	if got := p.text(".alert-error"); got != "You have already checked in today" {
		t.Fatalf("unexpected error %q", got)
	}
	if n := h.api.Calls("POST /api/attendance/checkin"); n != 1 {
		t.Fatalf("expected the repeated check-in to stay local, got %d API calls", n)
	}

	p = b.post("/attendance/checkout", here())
	if !strings.HasPrefix(p.text(".alert-success"), "Check-out successful!") {
		t.Fatalf("unexpected confirmation %q (error %q)", p.text(".alert-success"), p.text(".alert-error"))
	}
	if !p.disabled("#checkin-button") || !p.disabled("#checkout-button") {
		t.Fatalf("expected both actions disabled once the day is complete")
	}
	if p.doc.Find("#attendance-history tbody tr").Length() != 1 {
		t.Fatalf("expected one history row")
	}
}

func TestOutOfOrderCheckOutNeverReachesAPI(t *testing.T) {
	h := newHarness(t)
	h.api.SetOffice(40.7128, -74.0060, 100)
	h.addEmployee("Emp One", "emp@example.com")
	b := h.browser()
	b.login("emp@example.com", testPassword)
	b.get("/attendance")

	p := b.post("/attendance/checkout", here())
	if got := p.text(".alert-error"); got != "You must check in before checking out" {
		t.Fatalf("unexpected error %q", got)
	}
	if n := h.api.Calls("POST /api/attendance/checkout"); n != 0 {
		t.Fatalf("expected no checkout call, got %d", n)
	}
}

func TestGeolocationFailureIsShownInline(t *testing.T) {
	h := newHarness(t)
	h.api.SetOffice(40.7128, -74.0060, 100)
	h.addEmployee("Emp One", "emp@example.com")
	b := h.browser()
	b.login("emp@example.com", testPassword)
	b.get("/attendance")

	p := b.post("/attendance/checkin", url.Values{"geo_error": {"denied"}})
	if got := p.text(".alert-error"); got != "Permission denied or unable to get location" {
		t.Fatalf("unexpected error %q", got)
	}
	if p.disabled("#checkin-button") {
		t.Fatalf("check-in must stay available after a location failure")
	}
	if n := h.api.Calls("POST /api/attendance/checkin"); n != 0 {
		t.Fatalf("expected no checkin call, got %d", n)
	}
}

func TestRejectedCredentialEndsSession(t *testing.T) {
	h := newHarness(t)
	h.addEmployee("Emp One", "emp@example.com")
	b := h.browser()
	b.login("emp@example.com", testPassword)

	h.api.RevokeSessions("emp@example.com")
	p := b.get("/leaves")
	if p.path != "/" {
		t.Fatalf("expected redirect to login, got %s", p.path)
	}
	if got := p.text(".alert-error"); got != "Session expired, please log in again" {
		t.Fatalf("unexpected error %q", got)
	}
	keys := b.storedKeys()
	for _, key := range []string{session.KeyUser, session.KeyAccessToken, session.KeyRefreshToken} {
		if slices.Contains(keys, key) {
			t.Fatalf("expected %s to be cleared, got %v", key, keys)
		}
	}
	if p := b.get("/leaves"); p.path != "/" {
		t.Fatalf("expected the browser to stay signed out, got %s", p.path)
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.login(testAdminEmail, testAdminPassword)

	p := b.post("/logout", nil)
	if p.path != "/" || p.text(".alert-success") != "You have been logged out" {
		t.Fatalf("unexpected logout page %s %q", p.path, p.text(".alert-success"))
	}
	if keys := b.storedKeys(); slices.Contains(keys, session.KeyUser) || slices.Contains(keys, session.KeyAccessToken) {
		t.Fatalf("expected session to be cleared, got %v", keys)
	}
	if n := h.api.Calls("POST /api/auth/logout"); n != 1 {
		t.Fatalf("expected one logout notification, got %d", n)
	}
	if p := b.get("/dashboard"); p.path != "/" {
		t.Fatalf("expected dashboard to require login again, got %s", p.path)
	}
}

func TestAdminDashboard(t *testing.T) {
	h := newHarness(t)
	h.api.SetOffice(40.7128, -74.0060, 100)
	for i := 1; i <= 7; i++ {
		h.addEmployee(fmt.Sprintf("Emp %d", i), fmt.Sprintf("emp%d@example.com", i))
	}
	emp := h.browser()
	emp.login("emp1@example.com", testPassword)
	emp.get("/attendance")
	emp.post("/attendance/checkin", here())

	admin := h.browser()
	p := admin.login(testAdminEmail, testAdminPassword)
	if got := p.text("#stat-total"); got != "7" {
		t.Fatalf("expected 7 employees, got %q", got)
	}
	if got := p.text("#stat-present"); got != "1" {
		t.Fatalf("expected 1 present, got %q", got)
	}
	if got := p.text("#stat-absent"); got != "6" {
		t.Fatalf("expected 6 absent, got %q", got)
	}
	if n := p.doc.Find("#employee-preview li").Length(); n != 5 {
		t.Fatalf("expected 5 preview rows, got %d", n)
	}
	if got := p.text(".more"); got != "...and 2 more" {
		t.Fatalf("unexpected overflow text %q", got)
	}
	if n := p.doc.Find("#recent-attendance tbody tr").Length(); n != 1 {
		t.Fatalf("expected one recent attendance row, got %d", n)
	}
}

func TestEmployeeLifecycle(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.login(testAdminEmail, testAdminPassword)

	p := b.post("/employees", url.Values{
		"name":          {"Grace Hopper"},
		"email":         {"grace@example.com"},
		"phone":         {"555-0100"},
		"designation":   {"Rear Admiral"},
		"department":    {"Navy"},
		"dateOfJoining": {"2024-01-15"},
		"password":      {testPassword},
	})
	if p.text(".alert-success") != "Employee created" {
		t.Fatalf("unexpected result %q (error %q)", p.text(".alert-success"), p.text(".alert-error"))
	}
	if !strings.Contains(p.text("#employees"), "grace@example.com") {
		t.Fatalf("expected new employee in the list")
	}

	p = b.post("/employees", url.Values{"name": {"Dup"}, "email": {"grace@example.com"}, "password": {testPassword}})
	if p.text(".alert-error") != "User already exists" {
		t.Fatalf("expected duplicate to be refused, got %q", p.text(".alert-error"))
	}

	if p := b.get("/employees?search=navy"); p.doc.Find("#employees tbody tr").Length() != 1 {
		t.Fatalf("expected search to find the employee")
	}
	if p := b.get("/employees?search=nobody"); p.doc.Find("#employees").Length() != 0 {
		t.Fatalf("expected search to find nothing")
	}

	id, _ := p.doc.Find(`#employees a[href^="/employees?edit="]`).First().Attr("href")
	id = strings.TrimPrefix(id, "/employees?edit=")
	if id == "" {
		t.Fatalf("expected an edit link")
	}
	p = b.post("/employees/"+id, url.Values{"name": {"Grace B. Hopper"}, "email": {"grace@example.com"}, "department": {"Navy"}})
	if p.text(".alert-success") != "Employee updated" || !strings.Contains(p.text("#employees"), "Grace B. Hopper") {
		t.Fatalf("expected update to apply, got %q", p.text(".alert-error"))
	}

	p = b.post("/employees/"+id+"/delete", nil)
	if p.text(".alert-error") != "Deletion was not confirmed" {
		t.Fatalf("expected unconfirmed delete to be refused")
	}
	p = b.post("/employees/"+id+"/delete", url.Values{"confirm": {"yes"}})
	if p.text(".alert-success") != "Employee deleted" || p.doc.Find("#employees").Length() != 0 {
		t.Fatalf("expected employee to be removed")
	}
}

func TestEmployeeImportReportsSkippedRows(t *testing.T) {
	h := newHarness(t)
	h.addEmployee("Existing", "taken@example.com")
	b := h.browser()
	b.login(testAdminEmail, testAdminPassword)

	var sheet bytes.Buffer
	if err := spreadsheet.WriteEmployees(&sheet, []hrapi.Employee{
		{Name: "New Person", Email: "new@example.com"},
		{Name: "Taken", Email: "taken@example.com"},
		{Name: "Broken", Email: "broken"},
	}); err != nil {
		t.Fatalf("build workbook: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("csrf_token", b.token())
	_ = mw.WriteField("default_password", testPassword)
	fw, _ := mw.CreateFormFile("file", "people.xlsx")
	_, _ = fw.Write(sheet.Bytes())
	_ = mw.Close()

	p := b.read(b.client.Post(h.web.URL+"/employees/import", mw.FormDataContentType(), &body))
	if p.text(".alert-success") != "Imported 1 employees" {
		t.Fatalf("unexpected result %q (error %q)", p.text(".alert-success"), p.text(".alert-error"))
	}
	problems := p.doc.Find("#import-problems li")
	if problems.Length() != 2 {
		t.Fatalf("expected two skipped rows, got %d", problems.Length())
	}
	if !strings.Contains(p.text("#import-problems"), "taken@example.com") {
		t.Fatalf("expected the duplicate to be reported, got %q", p.text("#import-problems"))
	}
}

func TestOfficeLocation(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.login(testAdminEmail, testAdminPassword)

	p := b.post("/office-location", url.Values{"latitude": {"123"}, "longitude": {"0"}, "radius": {"50"}})
	if p.text(".alert-error") != "Latitude must be a number between -90 and 90" {
		t.Fatalf("unexpected error %q", p.text(".alert-error"))
	}
	if v, _ := p.doc.Find(`input[name="latitude"]`).Attr("value"); v != "123" {
		t.Fatalf("expected the form to keep its input, got %q", v)
	}
	if n := h.api.Calls("POST /api/employees/office"); n != 0 {
		t.Fatalf("expected invalid input to stay local, got %d calls", n)
	}

	p = b.post("/office-location", url.Values{"latitude": {"51.5"}, "longitude": {"-0.12"}, "radius": {"75"}})
	if p.text(".alert-success") != "Office location saved" {
		t.Fatalf("unexpected result %q (error %q)", p.text(".alert-success"), p.text(".alert-error"))
	}
	if v, _ := p.doc.Find(`input[name="radius"]`).Attr("value"); v != "75" {
		t.Fatalf("expected saved radius to be shown, got %q", v)
	}
}

func TestLeaveReview(t *testing.T) {
	h := newHarness(t)
	h.addEmployee("Emp One", "emp@example.com")
	emp := h.browser()
	emp.login("emp@example.com", testPassword)

	p := emp.post("/leaves", url.Values{"type": {"sick"}, "startDate": {"2025-03-20"}, "endDate": {"2025-03-18"}, "reason": {"flu"}})
	if p.text(".alert-error") != "Start date must be before end date" {
		t.Fatalf("unexpected error %q", p.text(".alert-error"))
	}
	if v, _ := p.doc.Find(`textarea[name="reason"]`).Html(); v != "flu" {
		t.Fatalf("expected the reason to be kept, got %q", v)
	}

	p = emp.post("/leaves", url.Values{"type": {"sick"}, "startDate": {"2025-03-18"}, "endDate": {"2025-03-20"}, "reason": {"flu"}})
	if p.text(".alert-success") != "Leave application submitted" {
		t.Fatalf("unexpected result %q (error %q)", p.text(".alert-success"), p.text(".alert-error"))
	}
	if !strings.Contains(p.text("#my-leaves"), "Pending") {
		t.Fatalf("expected a pending leave, got %q", p.text("#my-leaves"))
	}

	admin := h.browser()
	admin.login(testAdminEmail, testAdminPassword)
	p = admin.get("/leaves/manage?status=pending")
	action, ok := p.doc.Find("#all-leaves form").Attr("action")
	if !ok {
		t.Fatalf("expected a review form")
	}
	back, _ := p.doc.Find(`#all-leaves input[name="return"]`).Attr("value")

	p = admin.post(action, url.Values{"current": {"pending"}, "status": {"approved"}, "return": {back}})
	if p.text(".alert-success") != "Leave approved" || p.path != "/leaves/manage" || p.query.Get("status") != "pending" {
		t.Fatalf("unexpected review result %s?%v %q", p.path, p.query, p.text(".alert-error"))
	}

	p = admin.post(action, url.Values{"current": {"approved"}, "status": {"rejected"}, "return": {back}})
	if p.text(".alert-error") == "" {
		t.Fatalf("expected a reviewed leave to be final")
	}
	if n := h.api.Calls("PUT /api/leaves/{id}/status"); n != 1 {
		t.Fatalf("expected one review call, got %d", n)
	}

	if p := emp.get("/leaves"); !strings.Contains(p.text("#my-leaves"), "Approved") {
		t.Fatalf("expected the employee to see the approval, got %q", p.text("#my-leaves"))
	}
}

func TestAttendanceExport(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.login(testAdminEmail, testAdminPassword)

	resp, err := b.client.Get(h.web.URL + "/admin/attendance/export.xlsx")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Disposition"), "attendance.xlsx") {
		t.Fatalf("unexpected export response %d %q", resp.StatusCode, resp.Header.Get("Content-Disposition"))
	}
	rows, err := spreadsheet.ReadRows(resp.Body, "attendance.xlsx")
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "Date" {
		t.Fatalf("expected only the header row, got %v", rows)
	}
}
