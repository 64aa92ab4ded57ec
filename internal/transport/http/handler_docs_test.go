package httptransport

import (
	"net/http"
	"strings"
	"testing"

	_ "aihelper-server-go/docs"
	"aihelper-server-go/internal/platform/logging"
)

func TestDocsServedWithoutToken(t *testing.T) {
	engine, _ := newTestEngine(t)
	RegisterDocs(engine, logging.NewNop())

	w := get(engine, "/openapi.json", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for /openapi.json without token, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"swagger": "2.0"`) {
		t.Fatalf("expected swagger 2.0 document, got %s", body[:min(len(body), 120)])
	}
	if !strings.Contains(body, "/auth/login") || !strings.Contains(body, "/messages/{id}") {
		t.Fatal("expected documented paths in the openapi document")
	}

	w = get(engine, "/docs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for /docs without token, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html docs page, got content type %q", ct)
	}
	if !strings.Contains(w.Body.String(), "/openapi.json") {
		t.Fatal("docs page must reference the openapi document")
	}
}
