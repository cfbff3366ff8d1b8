package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"lesson-library/internal/blob"
	"lesson-library/internal/catalog"
	"lesson-library/internal/model"
	"lesson-library/internal/session"
	"lesson-library/internal/store/jsonfile"
	"lesson-library/internal/teachers"

	"github.com/klauspost/compress/zip"
)

const testAdminPassword = "admin-pass-123"

type testEnv struct {
	ts        *httptest.Server
	store     *jsonfile.Store
	catalog   *catalog.Catalog
	uploadDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := jsonfile.New(t.TempDir())
	if err != nil {
		t.Fatalf("jsonfile.New: %v", err)
	}
	uploadDir := t.TempDir()
	blobs, err := blob.NewLocal(uploadDir)
	if err != nil {
		t.Fatalf("blob.NewLocal: %v", err)
	}

	creds := teachers.NewCredentials(st)
	workflow := teachers.NewWorkflow(st, creds, nil)
	cat := catalog.New(st)
	gateway := catalog.NewGateway(cat, blobs, []string{"pdf", "txt", "png"})
	sessions, err := session.New(session.Options{
		Dir:           t.TempDir(),
		Secret:        "test-session-secret-0123456789",
		TTL:           time.Hour,
		AdminPassword: testAdminPassword,
	}, creds)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	srv, err := New(Config{
		Addr:           "127.0.0.1:0",
		Build:          BuildInfo{Version: "test", Commit: "abc123"},
		Store:          st,
		Workflow:       workflow,
		Credentials:    creds,
		Catalog:        cat,
		Gateway:        gateway,
		Sessions:       sessions,
		MaxUploadBytes: 64 << 10,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return &testEnv{ts: ts, store: st, catalog: cat, uploadDir: uploadDir}
}

// browser returns a client with its own cookie jar that does not follow
// redirects.
func (e *testEnv) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type result struct {
	status   int
	location string
	header   http.Header
	body     string
}

func do(t *testing.T, c *http.Client, req *http.Request) result {
	t.Helper()
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return result{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		header:   resp.Header,
		body:     string(b),
	}
}

func (e *testEnv) get(t *testing.T, c *http.Client, path string) result {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	return do(t, c, req)
}

func (e *testEnv) post(t *testing.T, c *http.Client, path string, form url.Values) result {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, c, req)
}

func (e *testEnv) upload(t *testing.T, c *http.Client, fields map[string]string, filename, content string) result {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/upload", &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(t, c, req)
}

// seedTeacher makes username the active teacher without going through the
// admin pages.
func (e *testEnv) seedTeacher(t *testing.T, username, password string) {
	t.Helper()
	hash, err := teachers.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	err = e.store.SetActiveTeacher(context.Background(), model.TeacherCredential{
		Username: username, PasswordHash: hash, ApprovedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) loginTeacher(t *testing.T, c *http.Client, username, password string) {
	t.Helper()
	res := e.post(t, c, "/teacher", url.Values{"username": {username}, "password": {password}})
	if res.status != http.StatusSeeOther || res.location != "/upload" {
		t.Fatalf("teacher login: status=%d location=%q", res.status, res.location)
	}
}

func (e *testEnv) loginAdmin(t *testing.T, c *http.Client) {
	t.Helper()
	res := e.post(t, c, "/admin/login", url.Values{"password": {testAdminPassword}})
	if res.status != http.StatusSeeOther || res.location != "/admin" {
		t.Fatalf("admin login: status=%d location=%q", res.status, res.location)
	}
}

func expectRedirect(t *testing.T, res result, location string) {
	t.Helper()
	if res.status != http.StatusSeeOther || res.location != location {
		t.Fatalf("expected 303 to %q, got status=%d location=%q", location, res.status, res.location)
	}
}

func expectBody(t *testing.T, res result, want string) {
	t.Helper()
	if !strings.Contains(res.body, want) {
		t.Fatalf("body does not contain %q:\n%s", want, res.body)
	}
}

func TestRegistrationApprovalFlow(t *testing.T) {
	env := newTestEnv(t)
	ann := env.browser(t)
	admin := env.browser(t)

	expectRedirect(t, env.get(t, ann, "/upload"), "/teacher")

	res := env.post(t, ann, "/register", url.Values{
		"username": {"ann"}, "password": {"secret1"}, "confirm": {"secret1"},
	})
	expectRedirect(t, res, "/")
	expectBody(t, env.get(t, ann, "/"), "Request submitted")

	// Submitting again is acknowledged without a second entry.
	env.post(t, ann, "/register", url.Values{
		"username": {"ann"}, "password": {"secret1"}, "confirm": {"secret1"},
	})
	expectBody(t, env.get(t, ann, "/"), "already submitted")

	// Not approved yet.
	expectRedirect(t, env.post(t, ann, "/teacher", url.Values{"username": {"ann"}, "password": {"secret1"}}), "/teacher")
	expectBody(t, env.get(t, ann, "/teacher"), msgBadLogin)

	expectRedirect(t, env.get(t, admin, "/admin"), "/admin/login")
	expectRedirect(t, env.post(t, admin, "/admin/login", url.Values{"password": {"nope"}}), "/admin/login")
	expectBody(t, env.get(t, admin, "/admin/login"), msgBadLogin)
	env.loginAdmin(t, admin)

	dash := env.get(t, admin, "/admin")
	if dash.status != http.StatusOK {
		t.Fatalf("dashboard status = %d", dash.status)
	}
	expectBody(t, dash, "ann")
	expectBody(t, dash, "No teacher is active.")

	expectRedirect(t, env.post(t, admin, "/admin/approve", url.Values{"index": {"0"}, "username": {"ann"}}), "/admin")
	expectBody(t, env.get(t, admin, "/admin"), "ann is now the active teacher.")

	pending, err := env.store.ListPending(context.Background())
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending after approve = %v, %v", pending, err)
	}

	env.loginTeacher(t, ann, "ann", "secret1")
	if res := env.get(t, ann, "/upload"); res.status != http.StatusOK {
		t.Fatalf("upload page status = %d", res.status)
	}

	// Registration is closed while a teacher is active.
	expectRedirect(t, env.get(t, env.browser(t), "/register"), "/teacher")
	bob := env.browser(t)
	res = env.post(t, bob, "/register", url.Values{
		"username": {"bob"}, "password": {"secret2"}, "confirm": {"secret2"},
	})
	expectRedirect(t, res, "/teacher")
	expectBody(t, env.get(t, bob, "/teacher"), "already active")

	// Deleting the teacher ends the live session.
	expectRedirect(t, env.post(t, admin, "/admin/delete-teacher", nil), "/admin")
	expectRedirect(t, env.get(t, ann, "/upload"), "/teacher")
	if res := env.get(t, bob, "/register"); res.status != http.StatusOK {
		t.Fatalf("register after delete: status = %d", res.status)
	}
}

func TestRegisterValidationMessages(t *testing.T) {
	env := newTestEnv(t)
	c := env.browser(t)

	tests := []struct {
		form url.Values
		want string
	}{
		{url.Values{"username": {" "}, "password": {"secret1"}, "confirm": {"secret1"}}, "Username and password are required."},
		{url.Values{"username": {"ann"}, "password": {"secret1"}, "confirm": {"secret2"}}, "Passwords do not match."},
		{url.Values{"username": {"ann"}, "password": {"abc"}, "confirm": {"abc"}}, "Password must be at least 6 characters."},
	}
	for _, tt := range tests {
		expectRedirect(t, env.post(t, c, "/register", tt.form), "/register")
		expectBody(t, env.get(t, c, "/register"), tt.want)
	}

	pending, err := env.store.ListPending(context.Background())
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending = %v, %v", pending, err)
	}
}

func TestApproveStaleIndex(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"ann", "bob"} {
		env.post(t, env.browser(t), "/register", url.Values{
			"username": {name}, "password": {"secret1"}, "confirm": {"secret1"},
		})
	}
	admin := env.browser(t)
	env.loginAdmin(t, admin)

	expectRedirect(t, env.post(t, admin, "/admin/approve", url.Values{"index": {"0"}, "username": {"bob"}}), "/admin")
	expectBody(t, env.get(t, admin, "/admin"), "The pending list changed.")
	if _, err := env.store.ActiveTeacher(context.Background()); err == nil {
		t.Fatal("stale approve activated a teacher")
	}

	// Out of range is a silent no-op.
	expectRedirect(t, env.post(t, admin, "/admin/approve", url.Values{"index": {"7"}}), "/admin")
	pending, _ := env.store.ListPending(context.Background())
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
}

func TestUploadDownloadDeleteFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedTeacher(t, "ann", "secret1")
	teacher := env.browser(t)
	student := env.browser(t)
	env.loginTeacher(t, teacher, "ann", "secret1")

	res := env.upload(t, teacher, map[string]string{"title": "Fractions", "subject": "Math"}, "notes.txt", "one half")
	expectRedirect(t, res, "/upload")
	expectBody(t, env.get(t, teacher, "/upload"), "notes.txt")

	res = env.upload(t, teacher, map[string]string{"title": "Again"}, "notes.txt", "two halves")
	expectRedirect(t, res, "/upload")

	index := env.get(t, student, "/?q=fraction&subject=math")
	expectBody(t, index, "Fractions")
	if strings.Contains(index.body, "Again") {
		t.Fatal("filter did not exclude non-matching lesson")
	}

	dl := env.get(t, student, "/download/notes.txt")
	if dl.status != http.StatusOK || dl.body != "one half" {
		t.Fatalf("download: status=%d body=%q", dl.status, dl.body)
	}
	if cd := dl.header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	if got := env.get(t, student, "/download/notes_1.txt"); got.body != "two halves" {
		t.Fatalf("second file body = %q", got.body)
	}

	lessons := env.catalog.List(context.Background(), catalog.Filter{Query: "Fractions"})
	if len(lessons) != 1 || lessons[0].Downloads != 1 {
		t.Fatalf("lessons after download = %+v", lessons)
	}

	view := env.get(t, student, "/view/notes.txt")
	if view.status != http.StatusOK || !strings.HasPrefix(view.header.Get("Content-Disposition"), "inline") {
		t.Fatalf("view: status=%d disposition=%q", view.status, view.header.Get("Content-Disposition"))
	}
	if res := env.get(t, student, "/view/deck.pptx"); res.status != http.StatusFound || res.location != "/download/deck.pptx" {
		t.Fatalf("view of non-inline type: status=%d location=%q", res.status, res.location)
	}
	if res := env.get(t, student, "/download/missing.pdf"); res.status != http.StatusNotFound {
		t.Fatalf("missing download status = %d", res.status)
	}

	export := env.get(t, teacher, "/export")
	if export.status != http.StatusOK {
		t.Fatalf("export status = %d", export.status)
	}
	zr, err := zip.NewReader(strings.NewReader(export.body), int64(len(export.body)))
	if err != nil {
		t.Fatalf("export is not a zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("export has %d entries, want 2", len(zr.File))
	}

	id := lessons[0].ID
	expectRedirect(t, env.post(t, teacher, "/delete/"+strconv.Itoa(id), nil), "/upload")
	if _, err := os.Stat(filepath.Join(env.uploadDir, "notes.txt")); !os.IsNotExist(err) {
		t.Fatalf("file still on disk: %v", err)
	}
	if res := env.get(t, student, "/download/notes.txt"); res.status != http.StatusNotFound {
		t.Fatalf("download after delete: status = %d", res.status)
	}
	expectRedirect(t, env.post(t, teacher, "/delete/"+strconv.Itoa(id), nil), "/upload")
	expectBody(t, env.get(t, teacher, "/upload"), "Lesson not found.")
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t)
	env.seedTeacher(t, "ann", "secret1")
	teacher := env.browser(t)
	env.loginTeacher(t, teacher, "ann", "secret1")

	expectRedirect(t, env.upload(t, teacher, map[string]string{"title": "Virus"}, "run.exe", "MZ"), "/upload")
	expectBody(t, env.get(t, teacher, "/upload"), "File type not allowed.")

	expectRedirect(t, env.upload(t, teacher, map[string]string{"title": ""}, "notes.txt", "x"), "/upload")
	expectBody(t, env.get(t, teacher, "/upload"), "Please fill in the title and choose a file.")

	big := strings.Repeat("x", 70<<10)
	expectRedirect(t, env.upload(t, teacher, map[string]string{"title": "Big"}, "big.txt", big), "/upload")

	entries, err := os.ReadDir(env.uploadDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected uploads left files: %v", entries)
	}
	if got := env.catalog.List(context.Background(), catalog.Filter{}); len(got) != 0 {
		t.Fatalf("rejected uploads were recorded: %+v", got)
	}
}

func TestTeacherOnlyRoutesRequireLogin(t *testing.T) {
	env := newTestEnv(t)
	c := env.browser(t)

	expectRedirect(t, env.get(t, c, "/export"), "/teacher")
	expectRedirect(t, env.post(t, c, "/delete/1", nil), "/teacher")
	expectBody(t, env.get(t, c, "/teacher"), "Please log in as a teacher.")

	// An admin session is not a teacher session.
	env.loginAdmin(t, c)
	expectRedirect(t, env.get(t, c, "/upload"), "/teacher")
	expectRedirect(t, env.post(t, c, "/admin/approve", url.Values{"index": {"0"}}), "/admin")
}

func TestTeacherLoginLockout(t *testing.T) {
	env := newTestEnv(t)
	env.seedTeacher(t, "ann", "secret1")
	c := env.browser(t)

	for i := 0; i < 5; i++ {
		env.post(t, c, "/teacher", url.Values{"username": {"ann"}, "password": {"wrong"}})
	}
	expectRedirect(t, env.post(t, c, "/teacher", url.Values{"username": {"ann"}, "password": {"secret1"}}), "/teacher")
	expectBody(t, env.get(t, c, "/teacher"), "Too many failed attempts")
}

func TestTeacherLoginUsernameIsExact(t *testing.T) {
	env := newTestEnv(t)
	env.seedTeacher(t, "ann", "secret1")
	c := env.browser(t)

	for _, name := range []string{" ann", "ann ", "Ann"} {
		res := env.post(t, c, "/teacher", url.Values{"username": {name}, "password": {"secret1"}})
		expectRedirect(t, res, "/teacher")
		expectBody(t, env.get(t, c, "/teacher"), "Invalid username or password.")
	}
	env.loginTeacher(t, c, "ann", "secret1")
}

func TestRangeRequestsCountOneDownload(t *testing.T) {
	env := newTestEnv(t)
	env.seedTeacher(t, "ann", "secret1")
	teacher := env.browser(t)
	env.loginTeacher(t, teacher, "ann", "secret1")
	expectRedirect(t, env.upload(t, teacher, map[string]string{"title": "Poem"}, "poem.txt", "roses are red"), "/upload")

	student := env.browser(t)
	ranged := func(rng string) result {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/download/poem.txt", nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Range", rng)
		return do(t, student, req)
	}
	downloads := func() int {
		t.Helper()
		lessons := env.catalog.List(context.Background(), catalog.Filter{Query: "Poem"})
		if len(lessons) != 1 {
			t.Fatalf("lessons = %+v", lessons)
		}
		return lessons[0].Downloads
	}

	if res := ranged("bytes=0-4"); res.status != http.StatusPartialContent || res.body != "roses" {
		t.Fatalf("first range: status=%d body=%q", res.status, res.body)
	}
	if res := ranged("bytes=6-"); res.status != http.StatusPartialContent || res.body != "are red" {
		t.Fatalf("resumed range: status=%d body=%q", res.status, res.body)
	}
	if got := downloads(); got != 1 {
		t.Fatalf("downloads after ranged fetch = %d, want 1", got)
	}

	env.get(t, student, "/download/poem.txt")
	if got := downloads(); got != 2 {
		t.Fatalf("downloads after full fetch = %d, want 2", got)
	}
}

func TestOpsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	c := env.browser(t)

	health := env.get(t, c, "/health")
	if health.status != http.StatusOK || !strings.Contains(health.body, `"version":"test"`) {
		t.Fatalf("health: status=%d body=%s", health.status, health.body)
	}

	ready := env.get(t, c, "/ready")
	if ready.status != http.StatusOK || !strings.Contains(ready.body, `"store"`) {
		t.Fatalf("ready: status=%d body=%s", ready.status, ready.body)
	}

	metrics := env.get(t, c, "/metrics")
	for _, want := range []string{
		"# TYPE library_requests_total counter",
		`library_info{commit="abc123",version="test"} 1`,
		"library_lessons 0",
		"library_pending_requests 0",
		`library_logins_total{result="failure",role="teacher"} 0`,
		"library_active_teacher 0",
	} {
		expectBody(t, metrics, want)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	env := newTestEnv(t)
	c := env.browser(t)

	res := env.get(t, c, "/")
	if res.header.Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id")
	}
	if res.header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff header")
	}
	if res.header.Get("Content-Security-Policy") == "" {
		t.Fatal("missing CSP header")
	}

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	if got := do(t, c, req).header.Get("X-Request-Id"); got != "client-supplied" {
		t.Fatalf("X-Request-Id = %q", got)
	}

	if res := env.get(t, c, "/no/such/page"); res.status != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", res.status)
	}
}

func TestCompression(t *testing.T) {
	env := newTestEnv(t)
	env.seedTeacher(t, "ann", "secret1")
	teacher := env.browser(t)
	env.loginTeacher(t, teacher, "ann", "secret1")
	env.upload(t, teacher, map[string]string{"title": "Long"}, "long.txt", strings.Repeat("lesson ", 1000))

	gzGet := func(path string) result {
		req, _ := http.NewRequest(http.MethodGet, env.ts.URL+path, nil)
		req.Header.Set("Accept-Encoding", "gzip")
		return do(t, teacher, req)
	}

	if got := gzGet("/metrics").header.Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("/metrics Content-Encoding = %q, want gzip", got)
	}
	if got := gzGet("/download/long.txt").header.Get("Content-Encoding"); got != "" {
		t.Fatalf("/download Content-Encoding = %q, want none", got)
	}
}
