package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/catalog"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/testutil"
)

func page(path, title, body string, tags ...string) models.Page {
	return models.Page{
		Document: &models.Document{
			Path: path, Layout: "post", Title: title, Tags: tags,
			Published: true, Checksum: "cs-" + path,
		},
		PublicPath: "/" + path + ".html",
		Body:       body,
	}
}

// testEnv sets up a catalog holding one published build and a router over it.
func testEnv(t *testing.T, authToken string) (*Service, http.Handler) {
	t.Helper()
	db := testutil.TestCatalog(t)
	pages := []models.Page{
		page("2014-06-12-exceptions-vs-error-codes", "Exceptions vs error codes", "error handling in C++", "cpp"),
		page("2014-06-19-avoiding-ambiguity-raw-pointers", "Avoiding ambiguity", "see /2014/06/12/exceptions-vs-error-codes.html", "cpp", "pointers"),
		page("drafts/notes", "Notes", "scratch"),
	}
	refs := []models.Reference{{
		Source:   "2014-06-19-avoiding-ambiguity-raw-pointers",
		Fragment: "exceptions-vs-error-codes",
		Target:   "2014-06-12-exceptions-vs-error-codes",
	}}
	b := catalog.Build{ID: "b1", StartedAt: time.Now(), FinishedAt: time.Now(), Documents: len(pages), References: len(refs)}
	if err := db.Publish(b, pages, refs, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	svc := NewService(db)
	return svc, NewRouter(svc, authToken != "", authToken, nil)
}

func get(t *testing.T, router http.Handler, target string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (%s)", target, err, w.Body.String())
		}
	}
	return w.Code
}

func TestListDocuments(t *testing.T) {
	_, router := testEnv(t, "")

	var resp DocumentListResponse
	if code := get(t, router, "/documents", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Total != 3 || len(resp.Documents) != 3 {
		t.Fatalf("total = %d, len = %d", resp.Total, len(resp.Documents))
	}
	if resp.Documents[0].Path != "2014-06-12-exceptions-vs-error-codes" {
		t.Errorf("first = %q, want insertion order", resp.Documents[0].Path)
	}

	resp = DocumentListResponse{}
	get(t, router, "/documents?tag=pointers", &resp)
	if resp.Total != 1 || resp.Documents[0].Title != "Avoiding ambiguity" {
		t.Errorf("tag filter = %+v", resp)
	}

	resp = DocumentListResponse{}
	get(t, router, "/documents?limit=1&offset=1", &resp)
	if resp.Total != 3 || len(resp.Documents) != 1 {
		t.Errorf("pagination = %+v", resp)
	}
}

func TestGetDocument(t *testing.T) {
	_, router := testEnv(t, "")

	var doc DocumentDetail
	if code := get(t, router, "/documents/2014-06-12-exceptions-vs-error-codes", &doc); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if doc.Title != "Exceptions vs error codes" || doc.PublicPath != "/2014-06-12-exceptions-vs-error-codes.html" {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Referrers) != 1 || doc.Referrers[0] != "2014-06-19-avoiding-ambiguity-raw-pointers" {
		t.Errorf("referrers = %v", doc.Referrers)
	}
}

func TestGetDocument_NestedAndEncodedPath(t *testing.T) {
	_, router := testEnv(t, "")
	for _, target := range []string{"/documents/drafts/notes", "/documents/drafts%2Fnotes"} {
		var doc DocumentDetail
		if code := get(t, router, target, &doc); code != http.StatusOK {
			t.Fatalf("%s: status = %d", target, code)
		}
		if doc.Path != "drafts/notes" {
			t.Errorf("%s: path = %q", target, doc.Path)
		}
		if doc.Referrers == nil {
			t.Errorf("%s: referrers should be an empty list, not null", target)
		}
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if code := get(t, router, "/documents/nope", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestReferrersEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	var resp ReferrersResponse
	get(t, router, "/referrers/2014-06-12-exceptions-vs-error-codes", &resp)
	if len(resp.Referrers) != 1 {
		t.Errorf("referrers = %+v", resp)
	}

	resp = ReferrersResponse{}
	get(t, router, "/referrers/drafts/notes", &resp)
	if resp.Referrers == nil || len(resp.Referrers) != 0 {
		t.Errorf("unreferenced doc should have empty referrers: %+v", resp)
	}

	if code := get(t, router, "/referrers/missing", nil); code != http.StatusNotFound {
		t.Errorf("unknown target = %d, want 404", code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	var resp SearchResponse
	if code := get(t, router, "/search?q=scratch", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Results) != 1 || resp.Results[0].Path != "drafts/notes" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	if code := get(t, router, "/search", nil); code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestLastBuild(t *testing.T) {
	svc, router := testEnv(t, "")

	var st BuildStatus
	get(t, router, "/builds/last", &st)
	if st.Last == nil || st.Last.ID != "b1" || st.Last.Documents != 3 {
		t.Fatalf("last = %+v", st.Last)
	}
	if st.Failure != nil {
		t.Errorf("unexpected failure %+v", st.Failure)
	}

	svc.RecordFailure(fmt.Errorf("build: %w", &apperr.DocumentError{
		Path:       "2016-01-01-index",
		Reference:  "raw-pointers",
		Candidates: []string{"2014-01-01-raw-pointers", "2015-01-01-raw-pointers"},
		Err:        apperr.ErrAmbiguousReference,
	}))
	st = BuildStatus{}
	get(t, router, "/builds/last", &st)
	if st.Last == nil || st.Last.ID != "b1" {
		t.Error("failed build must not hide the last successful one")
	}
	if st.Failure == nil || st.Failure.Path != "2016-01-01-index" || len(st.Failure.Candidates) != 2 {
		t.Fatalf("failure = %+v", st.Failure)
	}

	svc.RecordSuccess()
	st = BuildStatus{}
	get(t, router, "/builds/last", &st)
	if st.Failure != nil {
		t.Error("success should clear the failure")
	}
}

func TestLastBuild_EmptyCatalog(t *testing.T) {
	svc := NewService(testutil.TestCatalog(t))
	st, err := svc.BuildStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Last != nil {
		t.Errorf("last = %+v, want nil", st.Last)
	}
	svc.RecordFailure(errors.New("boom"))
	st, _ = svc.BuildStatus(context.Background())
	if st.Failure == nil || st.Failure.Error != "boom" || st.Failure.Path != "" {
		t.Errorf("failure = %+v", st.Failure)
	}
}

// Auth middleware tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if code := get(t, router, "/documents", nil); code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

// testEnvWithSSE creates a router with a stub SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	svc := NewService(testutil.TestCatalog(t))
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(svc, authEnabled, token, sseHandler)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")
	if code := get(t, router, "/events", nil); code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
