package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/adapters/storage/memory"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/adapters/upstream/openai"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/domain"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/services"
)

type fixture struct {
	handler  http.Handler
	stats    *memory.StatsStore
	calls    atomic.Int64
	status   atomic.Int64
	delay    time.Duration
	upstream *httptest.Server
}

func newFixture(t *testing.T, apiKey string, delay time.Duration) *fixture {
	t.Helper()
	f := &fixture{delay: delay}
	f.status.Store(http.StatusOK)

	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if status := int(f.status.Load()); status != http.StatusOK {
			http.Error(w, `{"error":{"message":"secret upstream detail"}}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"The answer is 4."}}]}`))
	}))
	t.Cleanup(f.upstream.Close)

	client, err := openai.New(openai.Config{BaseURL: f.upstream.URL, APIKey: apiKey})
	if err != nil {
		t.Fatalf("failed to create upstream client: %v", err)
	}
	solver, err := services.NewSolverService(client, services.SolverConfig{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to create solver: %v", err)
	}
	gate, err := services.NewAdmissionGate(memory.New(), services.GateConfig{
		Rule: domain.QuotaRule{Limit: 5, Window: domain.WindowCalendar},
	})
	if err != nil {
		t.Fatalf("failed to create gate: %v", err)
	}

	f.stats = memory.NewStatsStore()
	f.handler = New(Deps{Gate: gate, Solver: solver, Stats: f.stats, TrustForwardedHeaders: true})
	return f
}

func (f *fixture) solve(t *testing.T, ip, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/solveWordProblem", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	var payload map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not a JSON object: %q", w.Body.String())
	}
	return w, payload
}

func (f *fixture) used(t *testing.T, ip string) int64 {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
	r.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("quota endpoint returned %d", w.Code)
	}

	var payload struct {
		Used int64 `json:"used"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid quota response: %v", err)
	}
	return payload.Used
}

const twoPlusTwo = `{"problem":"What is 2 plus 2?"}`

func TestSolve_FiveSuccessesThenDailyLimit(t *testing.T) {
	f := newFixture(t, "sk-test", 0)

	for i := 1; i <= 5; i++ {
		w, payload := f.solve(t, "1.2.3.4", twoPlusTwo)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d (%v)", i, w.Code, payload)
		}
		if payload["answer"] != "The answer is 4." {
			t.Fatalf("request %d: unexpected answer %q", i, payload["answer"])
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(5-i) {
			t.Fatalf("request %d: expected remaining %d, got %q", i, 5-i, got)
		}
	}

	w, payload := f.solve(t, "1.2.3.4", twoPlusTwo)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if payload["error"] != "Daily limit reached" {
		t.Fatalf("unexpected error message %q", payload["error"])
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After on 429")
	}
	if got := f.calls.Load(); got != 5 {
		t.Fatalf("denied request must not reach upstream, got %d calls", got)
	}
}

func TestSolve_EmptyProblemIsRejectedAndKeepsQuota(t *testing.T) {
	f := newFixture(t, "sk-test", 0)

	for _, body := range []string{`{"problem":""}`, `{"problem":"   "}`, `{}`, `not json`, `{"problem":42}`} {
		w, payload := f.solve(t, "1.2.3.4", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
		if payload["error"] != "No problem provided" {
			t.Fatalf("body %q: unexpected error message %q", body, payload["error"])
		}
	}

	if got := f.used(t, "1.2.3.4"); got != 0 {
		t.Fatalf("invalid input must not consume quota, used=%d", got)
	}
	if got := f.calls.Load(); got != 0 {
		t.Fatalf("invalid input must not reach upstream, got %d calls", got)
	}
}

func TestSolve_UpstreamFailureKeepsQuotaAndHidesDetails(t *testing.T) {
	f := newFixture(t, "sk-test", 0)
	f.status.Store(http.StatusBadGateway)

	w, payload := f.solve(t, "1.2.3.4", twoPlusTwo)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if payload["error"] != "Failed to solve problem" {
		t.Fatalf("unexpected error message %q", payload["error"])
	}
	if strings.Contains(w.Body.String(), "secret upstream detail") {
		t.Fatalf("upstream details leaked to client: %s", w.Body.String())
	}
	if got := f.used(t, "1.2.3.4"); got != 0 {
		t.Fatalf("failed upstream call must not consume quota, used=%d", got)
	}
}

func TestSolve_MissingCredentialIsUpstreamFailure(t *testing.T) {
	f := newFixture(t, "", 0)

	w, payload := f.solve(t, "1.2.3.4", twoPlusTwo)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if payload["error"] != "Failed to solve problem" {
		t.Fatalf("unexpected error message %q", payload["error"])
	}
	if got := f.used(t, "1.2.3.4"); got != 0 {
		t.Fatalf("credential failure must not consume quota, used=%d", got)
	}
}

func TestSolve_IdentitiesHaveIndependentQuota(t *testing.T) {
	f := newFixture(t, "sk-test", 0)

	for i := 0; i < 5; i++ {
		if w, _ := f.solve(t, "1.2.3.4", twoPlusTwo); w.Code != http.StatusOK {
			t.Fatalf("warmup %d: expected 200, got %d", i+1, w.Code)
		}
	}
	if w, _ := f.solve(t, "1.2.3.4", twoPlusTwo); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected first identity to be limited, got %d", w.Code)
	}

	if w, _ := f.solve(t, "5.6.7.8", twoPlusTwo); w.Code != http.StatusOK {
		t.Fatalf("expected second identity to be served, got %d", w.Code)
	}
}

func TestSolve_LimitCheckedBeforeBodyValidation(t *testing.T) {
	f := newFixture(t, "sk-test", 0)

	for i := 0; i < 5; i++ {
		_, _ = f.solve(t, "1.2.3.4", twoPlusTwo)
	}

	w, payload := f.solve(t, "1.2.3.4", `{"problem":""}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for exhausted identity, got %d", w.Code)
	}
	if payload["error"] != "Daily limit reached" {
		t.Fatalf("unexpected error message %q", payload["error"])
	}
}

func TestSolve_ConcurrentRequestsNeverExceedLimit(t *testing.T) {
	f := newFixture(t, "sk-test", 20*time.Millisecond)

	var ok, limited atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := httptest.NewRequest(http.MethodPost, "/api/solveWordProblem", strings.NewReader(twoPlusTwo))
			r.Header.Set("X-Forwarded-For", "1.2.3.4")
			w := httptest.NewRecorder()
			f.handler.ServeHTTP(w, r)
			switch w.Code {
			case http.StatusOK:
				ok.Add(1)
			case http.StatusTooManyRequests:
				limited.Add(1)
			default:
				t.Errorf("unexpected status %d", w.Code)
			}
		}()
	}
	wg.Wait()

	if got := ok.Load(); got != 5 {
		t.Fatalf("expected exactly 5 successes, got %d", got)
	}
	if got := limited.Load(); got != 15 {
		t.Fatalf("expected 15 rate limited responses, got %d", got)
	}
	if got := f.calls.Load(); got != 5 {
		t.Fatalf("expected 5 upstream calls, got %d", got)
	}
}

func TestSolve_RejectsOtherMethods(t *testing.T) {
	f := newFixture(t, "sk-test", 0)

	r := httptest.NewRequest(http.MethodGet, "/api/solveWordProblem", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestStats_ReportsOutcomes(t *testing.T) {
	f := newFixture(t, "sk-test", 0)

	_, _ = f.solve(t, "1.2.3.4", twoPlusTwo)
	_, _ = f.solve(t, "1.2.3.4", `{"problem":""}`)

	r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var snap domain.StatsSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid stats response: %v", err)
	}
	if snap.Solved != 1 || snap.Invalid != 1 {
		t.Fatalf("unexpected stats %+v", snap)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "sk-test", 0)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
