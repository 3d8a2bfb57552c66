package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sweetpotato0/coverwise/advisor"
	"github.com/sweetpotato0/coverwise/catalog"
	"github.com/sweetpotato0/coverwise/contrib/embedder/hashing"
	"github.com/sweetpotato0/coverwise/contrib/vector/inmemory"
	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/middleware"
	"github.com/sweetpotato0/coverwise/pkg/logging"
	"github.com/sweetpotato0/coverwise/rag/document"
	"github.com/sweetpotato0/coverwise/rag/persistence"
	"github.com/sweetpotato0/coverwise/rag/retriever"
	"github.com/sweetpotato0/coverwise/scoring"
)

func newTestServer(t *testing.T) (*Server, *retriever.Retriever) {
	t.Helper()
	r := retriever.New(inmemory.NewInMemoryVectorStore(), hashing.New(0), nil, persistence.NewMemory(),
		retriever.WithLogger(logging.Discard()))
	adv := advisor.New(r, scoring.NewDefault(), advisor.WithLogger(logging.Discard()))
	return New(r, adv, WithLogger(logging.Discard())), r
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

var testProducts = []map[string]any{
	{"id": "a", "name": "Basic", "vendorName": "Acme", "premiumAmount": 200, "tags": []string{"funeral"}, "vendorVerified": true},
	{"id": "b", "name": "Motor Plus", "vendorName": "Shield", "premiumAmount": 300, "tags": []string{"motor", "theft"}, "vendorVerified": true},
}

func TestIngestThenHealth(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := post(t, h, "/api/v1/ingest", IngestRequest{
		VendorID: "v1",
		Filename: "motor.txt",
		Document: "Covers theft of the vehicle.\n\nExcludes racing.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d body = %s", rec.Code, rec.Body)
	}
	if got := decodeBody[IngestResponse](t, rec); got.Chunks != 2 {
		t.Errorf("chunks = %d, want 2", got.Chunks)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if got := decodeBody[HealthResponse](t, rec); got.Status != "ok" || got.Chunks != 2 {
		t.Errorf("health = %+v", got)
	}
}

func TestIngestValidation(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	t.Run("empty document", func(t *testing.T) {
		rec := post(t, h, "/api/v1/ingest", IngestRequest{VendorID: "v1"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		body := decodeBody[middleware.ErrorBody](t, rec)
		if body.StatusCode != http.StatusBadRequest || body.Error != "Bad Request" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingest", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestIngestRequestToDocument(t *testing.T) {
	doc, err := IngestRequest{VendorID: "v9", Filename: "f.html", ContentType: "text/html", Document: "<p>x</p>"}.ToDocument()
	if err != nil {
		t.Fatalf("ToDocument: %v", err)
	}
	if doc.ID != "f.html" || !doc.IsHTML() {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Metadata["vendor_id"] != "v9" || doc.Metadata["filename"] != "f.html" {
		t.Errorf("metadata = %v", doc.Metadata)
	}
}

type rankedBody struct {
	Recommendations []map[string]any `json:"recommendations"`
}

func TestRank(t *testing.T) {
	s, _ := newTestServer(t)
	rec := post(t, s.Handler(), "/api/v1/rank", RecommendRequest{
		UserProfile: map[string]any{"budget": 300, "needs": []string{"motor", "theft"}, "age": 30},
		Products:    testProducts,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	body := decodeBody[rankedBody](t, rec)
	if len(body.Recommendations) != 2 {
		t.Fatalf("recommendations = %v", body.Recommendations)
	}
	first := body.Recommendations[0]
	if first["id"] != "b" {
		t.Errorf("first = %v, want product b", first["id"])
	}
	if first["score"] != float64(80) {
		t.Errorf("score = %v, want 80", first["score"])
	}
	if _, ok := first["matchBreakdown"]; !ok {
		t.Error("matchBreakdown missing")
	}
}

func TestRecommendRanking(t *testing.T) {
	s, r := newTestServer(t)
	if _, err := r.Ingest(context.Background(), document.Document{Content: "Motor cover includes theft.\n\nFuneral cover pays burial costs."}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	rec := post(t, s.Handler(), "/api/v1/recommend", RecommendRequest{
		UserProfile: map[string]any{"budget": 300, "needs": []string{"motor", "theft"}},
		Query:       "motor theft",
		Products:    testProducts,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	payload := decodeBody[advisor.Payload](t, rec)
	if payload.Source != advisor.SourceRanking {
		t.Errorf("source = %q", payload.Source)
	}
	if len(payload.Recommendations) != 2 || payload.Recommendations[0].ID != "b" {
		t.Errorf("recommendations = %+v", payload.Recommendations)
	}
	if len(payload.ContextUsed) != 2 || payload.ContextUsed[0] != "Motor cover includes theft." {
		t.Errorf("context_used = %q", payload.ContextUsed)
	}
}

type stubRecommender struct {
	err error
}

func (s stubRecommender) Rank(catalog.UserProfile, []catalog.Product) []scoring.ScoredProduct {
	return nil
}

func (s stubRecommender) Recommend(context.Context, advisor.Request) (advisor.Payload, error) {
	return advisor.Payload{}, s.err
}

func TestRecommendErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing configuration", fmt.Errorf("gemini: %w", errorskg.ErrMissingConfiguration), http.StatusServiceUnavailable},
		{"storage", fmt.Errorf("save: %w", errorskg.ErrStorage), http.StatusInternalServerError},
		{"invalid", errorskg.ErrInvalidInput, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := retriever.New(inmemory.NewInMemoryVectorStore(), hashing.New(0), nil, nil, retriever.WithLogger(logging.Discard()))
			s := New(r, stubRecommender{err: tt.err}, WithLogger(logging.Discard()))
			rec := post(t, s.Handler(), "/api/v1/recommend", RecommendRequest{})
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			body := decodeBody[middleware.ErrorBody](t, rec)
			if body.StatusCode != tt.want || body.Message != tt.err.Error() {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestRankEmptyProducts(t *testing.T) {
	r := retriever.New(inmemory.NewInMemoryVectorStore(), hashing.New(0), nil, nil, retriever.WithLogger(logging.Discard()))
	s := New(r, stubRecommender{}, WithLogger(logging.Discard()))
	rec := post(t, s.Handler(), "/api/v1/rank", RecommendRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"recommendations\":[]}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestExtraHandler(t *testing.T) {
	r := retriever.New(inmemory.NewInMemoryVectorStore(), hashing.New(0), nil, nil, retriever.WithLogger(logging.Discard()))
	extra := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	s := New(r, stubRecommender{}, WithLogger(logging.Discard()), WithHandler("/mcp", extra))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("/mcp status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	if got := StatusFor(context.DeadlineExceeded); got != http.StatusGatewayTimeout {
		t.Errorf("deadline = %d", got)
	}
	if got := StatusFor(fmt.Errorf("x: %w", errorskg.ErrNotFound)); got != http.StatusNotFound {
		t.Errorf("not found = %d", got)
	}
}
