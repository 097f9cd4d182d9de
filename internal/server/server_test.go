package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymarket/internal/crypto"
	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/metrics"
	"github.com/alanyoungcy/binarymarket/internal/server/handler"
	"github.com/alanyoungcy/binarymarket/internal/server/middleware"
	"github.com/alanyoungcy/binarymarket/internal/service"
	"github.com/alanyoungcy/binarymarket/internal/store/memory"
)

var (
	admin   = crypto.PubkeyFromString("admin")
	creator = crypto.PubkeyFromString("creator")
	alice   = crypto.PubkeyFromString("alice")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testAPI struct {
	handler http.Handler
	metrics *metrics.Metrics
}

func newTestAPI(t *testing.T, cfg Config, mutate ...func(*Deps)) *testAPI {
	t.Helper()
	m := metrics.New()
	engine := service.NewEngine(service.EngineConfig{
		Global:    domain.GlobalConfig{Admin: admin, Bump: 255},
		RentFloor: 2_373_360,
	}, service.EngineDeps{
		Store:   memory.New(),
		Locks:   memory.NewLockManager(),
		Metrics: m,
		Logger:  discardLogger(),
	})
	deps := Deps{Markets: engine, Accounts: engine, Metrics: m}
	for _, fn := range mutate {
		fn(&deps)
	}
	return &testAPI{handler: NewHandler(cfg, deps, discardLogger()), metrics: m}
}

func (a *testAPI) do(t *testing.T, method, path string, caller *domain.Pubkey, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if caller != nil {
		req.Header.Set(middleware.CallerHeader, caller.Hex())
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func configureBody() map[string]any {
	return map[string]any{
		"value":        100_000,
		"range":        1,
		"token_amount": 1000,
		"token_price":  1_000_000,
		"date":         time.Now().Add(30 * 24 * time.Hour).Unix(),
		"feed":         crypto.PubkeyFromString("feed").Hex(),
	}
}

func TestAPI_MarketFlow(t *testing.T) {
	api := newTestAPI(t, Config{})

	rec := api.do(t, http.MethodPost, "/api/accounts/"+creator.Hex()+"/deposit", nil, map[string]any{"lamports": 1_000_000_000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.do(t, http.MethodPost, "/api/accounts/"+alice.Hex()+"/deposit", nil, map[string]any{"lamports": 1_000_000_000})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1 SOL", decode[map[string]any](t, rec)["sol"])

	rec = api.do(t, http.MethodPut, "/api/markets/btc-100k", &creator, configureBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode[domain.MarketRecord](t, rec)
	assert.Equal(t, domain.MarketStatusPrepare, m.Status)
	assert.Equal(t, creator, m.Creator)

	rec = api.do(t, http.MethodPost, "/api/markets/btc-100k/activate", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/markets/btc-100k/bets", &alice, map[string]any{"amount": 100, "is_yes": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bet := decode[struct {
		Stake        uint64              `json:"stake"`
		StakeSOL     string              `json:"stake_sol"`
		TokenAccount domain.TokenAccount `json:"token_account"`
	}](t, rec)
	assert.Equal(t, uint64(100_000_000), bet.Stake)
	assert.Equal(t, "0.1 SOL", bet.StakeSOL)
	assert.Equal(t, uint64(100), bet.TokenAccount.Amount)

	rec = api.do(t, http.MethodPost, "/api/markets/btc-100k/resolve", &admin, map[string]any{"outcome": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.MarketStatusResolved, decode[domain.MarketRecord](t, rec).Status)

	rec = api.do(t, http.MethodPost, "/api/markets/btc-100k/withdraw", &alice,
		map[string]any{"token_account": bet.TokenAccount.Address.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payout := decode[struct {
		Amount    uint64 `json:"amount"`
		AmountSOL string `json:"amount_sol"`
	}](t, rec)
	// 100 * 100_000_000 / 900 winning tokens outstanding.
	assert.Equal(t, uint64(11_111_111), payout.Amount)
	assert.Equal(t, "0.011111111 SOL", payout.AmountSOL)

	rec = api.do(t, http.MethodGet, "/api/markets/btc-100k/events", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[struct {
		Events []domain.Event `json:"events"`
	}](t, rec).Events
	require.Len(t, events, 5)
	assert.Equal(t, domain.EventWithdrawal, events[4].Kind)

	rec = api.do(t, http.MethodGet, "/api/accounts/"+alice.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acct := decode[domain.Account](t, rec)
	assert.Equal(t, uint64(1_000_000_000-100_000_000+11_111_111), acct.Lamports)
	require.Len(t, acct.Tokens, 1)
	assert.Equal(t, uint64(100), acct.Tokens[0].Amount, "claims leave the balance unless burn_on_claim is set")

	rec = api.do(t, http.MethodGet, "/api/markets?limit=10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Markets []domain.MarketRecord `json:"markets"`
		Limit   int                   `json:"limit"`
	}](t, rec)
	require.Len(t, list.Markets, 1)
	assert.Equal(t, 10, list.Limit)
}

func TestAPI_ErrorMapping(t *testing.T) {
	api := newTestAPI(t, Config{})
	api.do(t, http.MethodPost, "/api/accounts/"+creator.Hex()+"/deposit", nil, map[string]any{"lamports": 1_000_000_000})
	rec := api.do(t, http.MethodPut, "/api/markets/m1", &creator, configureBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []struct {
		name   string
		method string
		path   string
		caller *domain.Pubkey
		header string
		body   any
		status int
		code   string
	}{
		{"missing caller", http.MethodPost, "/api/markets/m1/bets", nil, "", map[string]any{"amount": 1, "is_yes": true}, http.StatusUnauthorized, ""},
		{"malformed caller", http.MethodPost, "/api/markets/m1/bets", nil, "0xzz", map[string]any{"amount": 1}, http.StatusBadRequest, ""},
		{"not active", http.MethodPost, "/api/markets/m1/bets", &alice, "", map[string]any{"amount": 1, "is_yes": true}, http.StatusConflict, "MarketNotActive"},
		{"non admin resolve", http.MethodPost, "/api/markets/m1/resolve", &alice, "", map[string]any{"outcome": true}, http.StatusForbidden, "InvalidAdmin"},
		{"missing outcome", http.MethodPost, "/api/markets/m1/resolve", &admin, "", map[string]any{}, http.StatusBadRequest, ""},
		{"unknown field", http.MethodPost, "/api/markets/m1/liquidity", &alice, "", map[string]any{"amount": 5}, http.StatusBadRequest, ""},
		{"unknown market", http.MethodGet, "/api/markets/nope", nil, "", nil, http.StatusNotFound, "NotFound"},
		{"id too long", http.MethodGet, "/api/markets/" + strings.Repeat("x", 33), nil, "", nil, http.StatusBadRequest, "InvalidMarket"},
		{"withdraw before resolution", http.MethodPost, "/api/markets/m1/withdraw", &alice, "", map[string]any{"token_account": alice.Hex()}, http.StatusConflict, "MarketNotResolved"},
		{"bad owner", http.MethodGet, "/api/accounts/alice", nil, "", nil, http.StatusBadRequest, "InvalidInput"},
		{"insufficient liquidity funds", http.MethodPost, "/api/markets/m1/liquidity", &alice, "", map[string]any{"lamports": 5}, http.StatusUnprocessableEntity, "InsufficientFunds"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var rd io.Reader
			if tc.body != nil {
				data, _ := json.Marshal(tc.body)
				rd = bytes.NewReader(data)
			}
			req := httptest.NewRequest(tc.method, tc.path, rd)
			if tc.caller != nil {
				req.Header.Set(middleware.CallerHeader, tc.caller.Hex())
			}
			if tc.header != "" {
				req.Header.Set(middleware.CallerHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			api.handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.code != "" {
				assert.Equal(t, tc.code, decode[apiError](t, rec).Code)
			}
		})
	}
}

func TestAPI_Auth(t *testing.T) {
	api := newTestAPI(t, Config{APIKey: "s3cret"})

	rec := api.do(t, http.MethodGet, "/api/markets", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

func TestAPI_RateLimit(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	api := newTestAPI(t, Config{RateLimit: 1, RateWindow: time.Minute}, func(d *Deps) { d.Limiter = limiter })

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"api:203.0.113.7"}, limiter.keys)

	limiter.err = errors.New("redis down")
	rec = api.do(t, http.MethodGet, "/api/markets", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "limiter errors fail open")
}

func TestAPI_CORSPreflight(t *testing.T) {
	api := newTestAPI(t, Config{CORSOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/markets/m1/bets", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), middleware.CallerHeader)

	req = httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPI_HealthChecks(t *testing.T) {
	api := newTestAPI(t, Config{}, func(d *Deps) {
		d.Checks = []handler.Check{
			{Name: "postgres", Probe: func(context.Context) error { return nil }},
			{Name: "redis", Probe: func(context.Context) error { return errors.New("connection refused") }},
		}
	})

	rec := api.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}](t, rec)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "down"}, body.Dependencies)
}

func TestAPI_MetricsRecordRoutePattern(t *testing.T) {
	api := newTestAPI(t, Config{})

	api.do(t, http.MethodGet, "/api/markets/a", nil, nil)
	api.do(t, http.MethodGet, "/api/markets/b", nil, nil)
	api.do(t, http.MethodGet, "/no/such/route", nil, nil)

	rec := api.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `marketd_http_requests_total{method="GET",route="GET /api/markets/{id}",status="404"} 2`)
	assert.Contains(t, out, `route="unmatched"`)
	assert.NotContains(t, out, "/api/markets/a")
}

type stubStream struct {
	msgs   []domain.StreamMessage
	lastID string
	count  int
}

func (s *stubStream) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	s.lastID, s.count = lastID, count
	if stream != domain.EventStream {
		return nil, errors.New("unexpected stream " + stream)
	}
	return s.msgs, nil
}

func TestAPI_StreamReplay(t *testing.T) {
	ev, err := domain.NewEvent(domain.EventMarketActivated, "m1", domain.ActivatedEvent{}, time.Unix(0, 0))
	require.NoError(t, err)
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	stream := &stubStream{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: payload},
		{ID: "2-0", Payload: []byte("not json")},
	}}
	api := newTestAPI(t, Config{}, func(d *Deps) { d.Stream = stream })

	rec := api.do(t, http.MethodGet, "/api/events/stream?after=0-5&count=5000", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0-5", stream.lastID)
	assert.Equal(t, 1000, stream.count)

	resp := decode[struct {
		Entries []struct {
			StreamID string       `json:"stream_id"`
			Event    domain.Event `json:"event"`
		} `json:"entries"`
		Next string `json:"next"`
	}](t, rec)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, ev.ID, resp.Entries[0].Event.ID)
	assert.Equal(t, "2-0", resp.Next)

	rec = api.do(t, http.MethodGet, "/api/events/stream?count=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_OptionalRoutesOff(t *testing.T) {
	api := newTestAPI(t, Config{})
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/events/stream", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/api/markets/m1/archive", nil, nil).Code)
}

type stubArchive struct {
	records map[string]domain.MarketRecord
}

func (s stubArchive) ArchiveMarket(_ context.Context, id string) (service.ArchiveResult, error) {
	if _, ok := s.records[id]; !ok {
		return service.ArchiveResult{}, domain.ErrMarketNotResolved
	}
	return service.ArchiveResult{MarketID: id, RecordPath: "markets/" + id + "/record.bin"}, nil
}

func (s stubArchive) ListArchive(_ context.Context, id string) ([]domain.BlobInfo, error) {
	if _, ok := s.records[id]; !ok {
		return nil, nil
	}
	return []domain.BlobInfo{{Path: "markets/" + id + "/record.bin", Size: 213}}, nil
}

func (s stubArchive) LoadRecord(_ context.Context, id string) (domain.MarketRecord, error) {
	m, ok := s.records[id]
	if !ok {
		return domain.MarketRecord{}, fmt.Errorf("archive: %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func TestAPI_ArchiveRoutes(t *testing.T) {
	archive := stubArchive{records: map[string]domain.MarketRecord{
		"done": {ID: "done", Status: domain.MarketStatusResolved, Result: true},
	}}
	api := newTestAPI(t, Config{}, func(d *Deps) { d.Archive = archive })

	rec := api.do(t, http.MethodPost, "/api/markets/done/archive", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "markets/done/record.bin", decode[service.ArchiveResult](t, rec).RecordPath)

	rec = api.do(t, http.MethodPost, "/api/markets/open/archive", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "MarketNotResolved", decode[apiError](t, rec).Code)

	rec = api.do(t, http.MethodGet, "/api/markets/open/archive", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"objects":[]}`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/markets/done/archive/record", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[domain.MarketRecord](t, rec)
	assert.Equal(t, "done", m.ID)
	assert.Equal(t, domain.MarketStatusResolved, m.Status)
	assert.True(t, m.Result)

	rec = api.do(t, http.MethodGet, "/api/markets/open/archive/record", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
