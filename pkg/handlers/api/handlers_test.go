package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mkv-relay-go/pkg/appctx"
	"mkv-relay-go/pkg/config"
	"mkv-relay-go/pkg/extractors"
	"mkv-relay-go/pkg/httpclient"
	"mkv-relay-go/pkg/logging"
	"mkv-relay-go/pkg/metrics"
	"mkv-relay-go/pkg/server"
	"mkv-relay-go/pkg/services"
	"mkv-relay-go/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstream serves pages under /glint and records what it was asked for.
type fakeUpstream struct {
	*httptest.Server

	mu         sync.Mutex
	paths      []string
	userAgents []string
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	u := &fakeUpstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.paths = append(u.paths, r.URL.EscapedPath())
		u.userAgents = append(u.userAgents, r.Header.Get("User-Agent"))
		u.mu.Unlock()

		switch r.URL.EscapedPath() {
		case "/glint/603":
			io.WriteString(w, `<html><video><source src="https://cdn.example.com/m/603.mkv?token=x"></video></html>`)
		case "/glint/1399/1/3":
			io.WriteString(w, `{"file":"https://cdn.example.com/tv/1399/S01E03.mkv","label":"HD"}`)
		case "/glint/a%2Fb":
			io.WriteString(w, "https://cdn.example.com/slash.mkv")
		case "/glint/empty", "/glint/empty/1/1":
			io.WriteString(w, `<html><source src="https://cdn.example.com/trailer.mp4"></html>`)
		case "/glint/blocked", "/glint/blocked/1/1":
			http.Error(w, "forbidden", http.StatusForbidden)
		case "/glint/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *fakeUpstream) requests() ([]string, []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.paths...), append([]string(nil), u.userAgents...)
}

func newTestHandler(t *testing.T, upstreamBase string) http.Handler {
	t.Helper()

	cfg := config.Defaults()
	cfg.BaseURL = "http://localhost:3000"
	cfg.UpstreamBaseURL = upstreamBase
	return newTestHandlerWithConfig(t, cfg)
}

func newTestHandlerWithConfig(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()

	log := logging.New("error", false, io.Discard)
	m := metrics.New()
	client := httpclient.New(cfg, log)
	svc := services.NewStreamService(log, extractors.NewMKVExtractor(client, log), cfg.UpstreamBaseURL, m)

	ctx := appctx.New(cfg, log).WithStreamService(svc).WithMetrics(m)
	srv := server.New(cfg, log, m)
	NewHandlers(ctx).RegisterRoutes(srv.Router())

	return srv.Handler()
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandlers_Movie(t *testing.T) {
	upstream := newFakeUpstream(t)
	h := newTestHandler(t, upstream.URL+"/glint")

	rec := do(h, http.MethodGet, "/movie/603")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t,
		`{"streams":[{"format":"mp4","url":"https://cdn.example.com/m/603.mkv?token=x","quality":"720p"}]}`,
		rec.Body.String())

	paths, agents := upstream.requests()
	assert.Equal(t, []string{"/glint/603"}, paths)
	assert.Equal(t, []string{"Mozilla/5.0"}, agents)
}

func TestHandlers_Episode(t *testing.T) {
	upstream := newFakeUpstream(t)
	h := newTestHandler(t, upstream.URL+"/glint")

	rec := do(h, http.MethodGet, "/tv/1399/1/3")

	require.Equal(t, http.StatusOK, rec.Code)

	var env types.StreamEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Len(t, env.Streams, 1)
	assert.Equal(t, types.StreamOption{
		Format:  "mp4",
		URL:     "https://cdn.example.com/tv/1399/S01E03.mkv",
		Quality: "720p",
	}, env.Streams[0])

	paths, _ := upstream.requests()
	assert.Equal(t, []string{"/glint/1399/1/3"}, paths)
}

func TestHandlers_EscapedSlashStaysInSegment(t *testing.T) {
	upstream := newFakeUpstream(t)
	h := newTestHandler(t, upstream.URL+"/glint")

	rec := do(h, http.MethodGet, "/movie/a%2Fb")

	require.Equal(t, http.StatusOK, rec.Code)
	paths, _ := upstream.requests()
	assert.Equal(t, []string{"/glint/a%2Fb"}, paths)
}

func TestHandlers_Outcomes(t *testing.T) {
	upstream := newFakeUpstream(t)
	h := newTestHandler(t, upstream.URL+"/glint")

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "movie page without mkv",
			path:       "/movie/empty",
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"MKV URL not found"}`,
		},
		{
			name:       "episode page without mkv",
			path:       "/tv/empty/1/1",
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"MKV URL not found"}`,
		},
		{
			name:       "movie upstream rejects",
			path:       "/movie/blocked",
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Failed to fetch movie stream","details":"Request failed with status code 403"}`,
		},
		{
			name:       "episode upstream rejects",
			path:       "/tv/blocked/1/1",
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Failed to fetch TV stream","details":"Request failed with status code 403"}`,
		},
		{
			name:       "upstream 404 is a fetch failure",
			path:       "/movie/unknown",
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Failed to fetch movie stream","details":"Request failed with status code 404"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, tt.path)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHandlers_UpstreamUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := dead.URL + "/glint"
	dead.Close()

	h := newTestHandler(t, base)

	rec := do(h, http.MethodGet, "/tv/1399/1/3")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Failed to fetch TV stream", body.Error)
	assert.NotEmpty(t, body.Details)
}

func TestHandlers_RoutingMisses(t *testing.T) {
	upstream := newFakeUpstream(t)
	h := newTestHandler(t, upstream.URL+"/glint")

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"movie without id", http.MethodGet, "/movie/", http.StatusNotFound},
		{"tv missing episode", http.MethodGet, "/tv/1399/1", http.StatusNotFound},
		{"tv extra segment", http.MethodGet, "/tv/1399/1/3/4", http.StatusNotFound},
		{"unknown path", http.MethodGet, "/show/1", http.StatusNotFound},
		{"prefix is a whole segment", http.MethodGet, "/movies/603", http.StatusNotFound},
		{"two trailing slashes", http.MethodGet, "/movie/603//", http.StatusNotFound},
		{"post movie", http.MethodPost, "/movie/603", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}

	paths, _ := upstream.requests()
	assert.Empty(t, paths, "routing misses never reach upstream")
}

func TestHandlers_IndexAndInfo(t *testing.T) {
	h := newTestHandler(t, "https://hahoy.server.arlen.icu/glint")

	rec := do(h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"GET /movie/{id}"`)
	assert.Contains(t, rec.Body.String(), `"upstream":"https://hahoy.server.arlen.icu/glint"`)

	rec = do(h, http.MethodGet, "/api/info")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"running","version":"1.0.0"}`, rec.Body.String())
}

func TestHandlers_Metrics(t *testing.T) {
	upstream := newFakeUpstream(t)
	h := newTestHandler(t, upstream.URL+"/glint")

	do(h, http.MethodGet, "/movie/603")
	do(h, http.MethodGet, "/movie/empty")

	rec := do(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `mkv_relay_resolves_total{kind="movie",outcome="found"} 1`)
	assert.Contains(t, body, `mkv_relay_resolves_total{kind="movie",outcome="not_found"} 1`)
	assert.True(t, strings.Contains(body, `route="/movie/{id}"`))
}

func TestHandlers_RequestIDHeader(t *testing.T) {
	h := newTestHandler(t, "https://hahoy.server.arlen.icu/glint")

	rec := do(h, http.MethodGet, "/api/info")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandlers_LenientMatching(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		wantStatus   int
		wantUpstream []string
	}{
		{"trailing slash", http.MethodGet, "/movie/603/", http.StatusOK, []string{"/glint/603"}},
		{"upper case prefix", http.MethodGet, "/MOVIE/603", http.StatusOK, []string{"/glint/603"}},
		{"mixed case tv with trailing slash", http.MethodGet, "/Tv/1399/1/3/", http.StatusOK, []string{"/glint/1399/1/3"}},
		{"escaped slash under upper case prefix", http.MethodGet, "/MOVIE/a%2Fb", http.StatusOK, []string{"/glint/a%2Fb"}},
		{"id keeps its case", http.MethodGet, "/Movie/AbC", http.StatusInternalServerError, []string{"/glint/AbC"}},
		{"head movie", http.MethodHead, "/movie/603", http.StatusOK, []string{"/glint/603"}},
		{"head tv", http.MethodHead, "/tv/1399/1/3", http.StatusOK, []string{"/glint/1399/1/3"}},
		{"info any case", http.MethodGet, "/API/Info/", http.StatusOK, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := newFakeUpstream(t)
			h := newTestHandler(t, upstream.URL+"/glint")

			rec := do(h, tt.method, tt.path)

			assert.Equal(t, tt.wantStatus, rec.Code)
			paths, _ := upstream.requests()
			assert.Equal(t, tt.wantUpstream, paths)
		})
	}
}

func TestHandlers_ResolveFinishesBeforeWriteDeadline(t *testing.T) {
	upstream := newFakeUpstream(t)

	cfg := config.Defaults()
	cfg.BaseURL = "http://localhost:3000"
	cfg.UpstreamBaseURL = upstream.URL + "/glint"
	cfg.WriteTimeout = time.Second
	h := newTestHandlerWithConfig(t, cfg)

	start := time.Now()
	rec := do(h, http.MethodGet, "/movie/slow")
	elapsed := time.Since(start)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Less(t, elapsed, cfg.WriteTimeout)

	var body types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Failed to fetch movie stream", body.Error)
	assert.Contains(t, body.Details, "deadline exceeded")
}

func TestHandlers_MetricsCountUnmatched(t *testing.T) {
	h := newTestHandler(t, "https://hahoy.server.arlen.icu/glint")

	do(h, http.MethodGet, "/show/1")
	do(h, http.MethodPost, "/movie/603")

	rec := do(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `mkv_relay_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, body, `mkv_relay_http_requests_total{method="POST",route="unmatched",status="405"} 1`)
}
