package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/registrysync/internal/config"
	"github.com/JonMunkholm/registrysync/internal/core"
	"github.com/JonMunkholm/registrysync/internal/metrics"
	"github.com/JonMunkholm/registrysync/internal/persist"
	"github.com/JonMunkholm/registrysync/internal/reconcile"
	"github.com/JonMunkholm/registrysync/internal/registry"
	"github.com/JonMunkholm/registrysync/internal/store/memstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	reconcile.HashCost = bcrypt.MinCost
}

const ocnicExport = "OCNIC,OName,ItemCode,DocTotal,ReconSum,BalDueDeb\n" +
	"12345-6789012-3,Ali Khan,P-001,5000,1000,200\n" +
	"12345-6789012-3,Ali Khan,P-001,5000,500,100\n" +
	"42101-7654321-0,Sara Ahmed,P-002,8000,(250),0\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

type testEnv struct {
	server  *Server
	service *core.Service
	reg     *registry.Registry
	prom    *prometheus.Registry
}

func newTestEnv(t *testing.T, cfg *config.Config, hydrate bool) testEnv {
	t.Helper()
	prom := prometheus.NewRegistry()
	m := metrics.New(prom)
	reg := registry.New()
	coord := persist.New(reg, memstore.New(), persist.WithMetrics(m))
	svc := core.NewService(coord, core.WithMetrics(m))
	if hydrate {
		require.NoError(t, svc.Hydrate(context.Background()))
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Drain(ctx)
	})

	srv := NewServer(svc, cfg, WithGatherer(prom))
	return testEnv{server: srv, service: svc, reg: reg, prom: prom}
}

func (e testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, target, fileName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestImport_AppliesExport(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)

	rec := env.do(uploadRequest(t, "/api/import?mode=merge", "export.csv", ocnicExport))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res core.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "2 accounts registered", res.Message)
	assert.Equal(t, reconcile.ModeMerge, res.Mode)
	assert.Equal(t, 2, res.Accounts)
	assert.NotEmpty(t, res.ImportID)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/accounts/P-001", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var acc registry.PropertyAccount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.Equal(t, "1500", acc.PaymentsReceived.String())
	assert.Len(t, acc.Transactions, 2)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/members/12345-6789012-3/accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var owned []registry.PropertyAccount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &owned))
	require.Len(t, owned, 1)
	assert.Equal(t, "P-001", owned[0].Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var journal []core.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &journal))
	require.Len(t, journal, 1)
	assert.Equal(t, "http", journal[0].Source)
	assert.Equal(t, "192.0.2.1", journal[0].IPAddress)
}

func TestImport_Rejections(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 256

	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		code   string
	}{
		{
			name:   "no file",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "/api/import", "", "") },
			status: http.StatusBadRequest,
			code:   "FILE004",
		},
		{
			name: "unknown mode",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/import?mode=append", "export.csv", ocnicExport)
			},
			status: http.StatusBadRequest,
			code:   "IMP004",
		},
		{
			name: "header only",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/import", "export.csv", "OCNIC,ItemCode\n")
			},
			status: http.StatusBadRequest,
			code:   "IMP001",
		},
		{
			name: "unresolved header",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/import", "export.csv", "foo,bar\n1,2\n")
			},
			status: http.StatusBadRequest,
			code:   "IMP002",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/import", "export.csv", ocnicExport+strings.Repeat("x", 512))
			},
			status: http.StatusRequestEntityTooLarge,
			code:   "FILE001",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(ocnicExport))
				req.Header.Set("Content-Type", "text/csv")
				return req
			},
			status: http.StatusBadRequest,
			code:   "FILE002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, cfg, true)
			before := env.reg.Snapshot()

			rec := env.do(tt.req(t))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
			assert.Equal(t, before, env.reg.Snapshot())
		})
	}
}

func TestImportPreview_DoesNotApply(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)
	before := env.reg.Snapshot()

	rec := env.do(uploadRequest(t, "/api/import/preview?mode=replace", "export.csv", ocnicExport))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var p core.ImportPreview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, reconcile.ModeReplace, p.Mode)
	assert.Equal(t, 2, p.Changes.Accounts.New)
	assert.Equal(t, 1, p.Changes.Accounts.Removed)
	assert.Equal(t, before, env.reg.Snapshot())
}

func TestQueries_NotFound(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)

	for path, code := range map[string]string{
		"/api/members/99999-9999999-9":          "REG001",
		"/api/members/99999-9999999-9/accounts": "REG001",
		"/api/accounts/NOPE":                    "REG002",
	} {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, code, decodeError(t, rec).Code, path)
	}
}

func TestListMembers_NoCredentials(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)

	rec := env.do(claimRequest(`{"identity":"35202-1234567-9","password":"correct-horse"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/members", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "credential")

	var members []registry.Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	assert.Len(t, members, len(registry.Seed().Members))
}

func claimRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/members/claim", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestClaim(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)

	rec := env.do(claimRequest(`{"identity":"35202-1234567-9","password":"correct-horse","email":"demo@example.com"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res reconcile.ClaimResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Created)
	assert.Equal(t, registry.StatusActive, res.Member.Status)
	assert.Empty(t, res.Member.Credential)

	rec = env.do(claimRequest(`{"identity":"35202-1234567-9","password":"another-pass"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "REG003", decodeError(t, rec).Code)

	rec = env.do(claimRequest(`{"identity":"61101-1111111-1","password":"brand-new-pass","name":"New Owner"}`))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestClaim_InvalidRequests(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"identity":`, "REG005"},
		{"missing password", `{"identity":"35202-1234567-9"}`, "VAL001"},
		{"short password", `{"identity":"35202-1234567-9","password":"short"}`, "VAL001"},
		{"bad email", `{"identity":"35202-1234567-9","password":"long-enough","email":"nope"}`, "VAL001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(claimRequest(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestSyncWithoutMirror(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/sync?force=true", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PER002", decodeError(t, rec).Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st persist.MirrorStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Configured)
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)

	rec := env.do(uploadRequest(t, "/api/import?mode=replace", "export.csv", ocnicExport))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res core.ResetResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "seed", res.Source)
	assert.Equal(t, registry.Seed(), env.reg.Snapshot())
}

func TestHealth(t *testing.T) {
	cold := newTestEnv(t, testConfig(), false)
	rec := cold.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = cold.do(uploadRequest(t, "/api/import", "export.csv", ocnicExport))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "PER003", decodeError(t, rec).Code)

	warm := newTestEnv(t, testConfig(), true)
	rec = warm.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var h core.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.True(t, h.Ready)
	assert.Equal(t, 1, h.Accounts)
	assert.Equal(t, core.DefaultMaxConcurrentImports, h.Imports.MaxConcurrent)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)
	env.do(uploadRequest(t, "/api/import", "export.csv", ocnicExport))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `registrysync_imports_total{mode="merge",outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), "registrysync_registry_accounts 3")
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportsPerMinute: 1}
	env := newTestEnv(t, cfg, true)

	for i := 0; i < 2; i++ {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Another client has its own budget.
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.RemoteAddr = "198.51.100.9:4000"
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	// Health and metrics sit outside the API limits.
	assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestRateLimit_ImportBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, ImportsPerMinute: 1}
	env := newTestEnv(t, cfg, true)

	rec := env.do(uploadRequest(t, "/api/import", "export.csv", ocnicExport))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(uploadRequest(t, "/api/import", "export.csv", ocnicExport))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/members", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/accounts", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestStatusForCode(t *testing.T) {
	tests := map[string]int{
		"IMP001":  http.StatusBadRequest,
		"IMP004":  http.StatusBadRequest,
		"FILE001": http.StatusRequestEntityTooLarge,
		"FILE003": http.StatusBadRequest,
		"VAL001":  http.StatusBadRequest,
		"REG001":  http.StatusNotFound,
		"REG003":  http.StatusConflict,
		"REG004":  http.StatusForbidden,
		"REG005":  http.StatusBadRequest,
		"PER001":  http.StatusInternalServerError,
		"PER002":  http.StatusConflict,
		"PER003":  http.StatusServiceUnavailable,
		"UPL002":  http.StatusTooManyRequests,
		"RATE001": http.StatusTooManyRequests,
		"ERR000":  http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusForCode(code), code)
	}
}
