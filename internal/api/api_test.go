package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roulette/internal/model"
	"github.com/roach88/roulette/internal/pools"
	"github.com/roach88/roulette/internal/session"
	"github.com/roach88/roulette/internal/store"
	"github.com/roach88/roulette/internal/testutil"
)

var start = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires a real coordinator over a temp store with one pool
// {A, B} under ExcludeLastN(1).
func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *session.Coordinator) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := pools.New(s, pools.WithLogger(quietLogger()))
	c := session.New(reg, s,
		session.WithLogger(quietLogger()),
		session.WithRandomSource(testutil.NewSequenceSource(0)),
		session.WithClock(testutil.NewStepClock(start, time.Hour).Now),
		session.WithIDGenerator(testutil.NewSequentialIDs("draw")),
	)
	_, _, err = c.PoolUpdated(context.Background(), model.Pool{
		ID:      "weapons",
		Rule:    model.ExcludeLastN(1),
		Entries: []model.Entry{{ID: "A", Weight: 1}, {ID: "B", Weight: 1}},
	})
	require.NoError(t, err)

	cfg.Service = c
	cfg.Logger = quietLogger()
	if cfg.Health == nil {
		cfg.Health = s.Ping
	}
	srv := httptest.NewServer(New(cfg))
	t.Cleanup(srv.Close)
	return srv, c
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestDraw_Success(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, body := do(t, http.MethodPost, srv.URL+"/pools/weapons/draws", `{"user_id":"alice"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	rec := body["record"].(map[string]any)
	assert.Equal(t, "A", rec["entry_id"])
	assert.Equal(t, "draw-0001", rec["id"])
	assert.Equal(t, float64(1), rec["seq"])
	assert.Equal(t, float64(1), rec["pool_version"])
	assert.Equal(t, "2026-06-01T00:00:00Z", rec["timestamp"])
}

func TestDraw_ExcludedEntryThenExhausted(t *testing.T) {
	srv, c := newTestServer(t, Config{})
	ctx := context.Background()

	_, _, err := c.PoolUpdated(ctx, model.Pool{
		ID:      "solo",
		Rule:    model.ExcludeLastN(1),
		Entries: []model.Entry{{ID: "only", Weight: 1}},
	})
	require.NoError(t, err)

	resp, _ := do(t, http.MethodPost, srv.URL+"/pools/solo/draws", `{"user_id":"alice"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/pools/solo/draws", `{"user_id":"alice"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "POOL_EXHAUSTED", body["error"])
	assert.Contains(t, body["message"], "no eligible entries remain")
}

func TestDraw_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown pool", "/pools/armor/draws", `{"user_id":"alice"}`, http.StatusNotFound, ""},
		{"missing user", "/pools/weapons/draws", `{}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown field", "/pools/weapons/draws", `{"user":"alice"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"not json", "/pools/weapons/draws", `alice`, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(body))
			} else {
				assert.Equal(t, "POOL_NOT_FOUND", body["error"])
			}
		})
	}
}

func TestPartyDraw(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, _ := do(t, http.MethodPost, srv.URL+"/pools/weapons/draws", `{"user_id":"bob"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/pools/weapons/party-draws", `{"user_ids":["alice","bob"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := body["records"].([]any)
	require.Len(t, records, 2)
	assert.Equal(t, "alice", records[0].(map[string]any)["user_id"])
	assert.Equal(t, "A", records[0].(map[string]any)["entry_id"])
	assert.Equal(t, "B", records[1].(map[string]any)["entry_id"])
	assert.Equal(t, float64(2), records[1].(map[string]any)["seq"])

	resp, body = do(t, http.MethodPost, srv.URL+"/pools/weapons/party-draws", `{"user_ids":["alice","alice"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))

	resp, body = do(t, http.MethodPost, srv.URL+"/pools/weapons/party-draws", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", errorCode(body))
}

func TestRestrict(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, body := do(t, http.MethodPost, srv.URL+"/pools/weapons/restrict", `{"exclude":["A"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["changed"])
	pool := body["pool"].(map[string]any)
	assert.Equal(t, float64(2), pool["version"])
	assert.Len(t, pool["entries"], 1)

	resp, body = do(t, http.MethodPost, srv.URL+"/pools/weapons/draws", `{"user_id":"alice"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "B", body["record"].(map[string]any)["entry_id"])

	resp, body = do(t, http.MethodPost, srv.URL+"/pools/weapons/restrict", `{"target":["Z"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))

	resp, body = do(t, http.MethodPost, srv.URL+"/pools/armor/restrict", `{"exclude":["A"]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "POOL_NOT_FOUND", errorCode(body))
}

func TestHistory(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	for i := 0; i < 3; i++ {
		resp, _ := do(t, http.MethodPost, srv.URL+"/pools/weapons/draws", `{"user_id":"alice"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/pools/weapons/users/alice/history?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := body["records"].([]any)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].(map[string]any)["entry_id"])
	assert.Equal(t, float64(3), records[0].(map[string]any)["seq"])

	resp, body = do(t, http.MethodGet, srv.URL+"/pools/weapons/users/nobody/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["records"])

	resp, body = do(t, http.MethodGet, srv.URL+"/pools/weapons/users/alice/history?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", errorCode(body))
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	for i := 0; i < 3; i++ {
		do(t, http.MethodPost, srv.URL+"/pools/weapons/draws", `{"user_id":"alice"}`)
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/pools/weapons/users/alice/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["total"])
	entries := body["entries"].([]any)
	assert.Equal(t, "A", entries[0].(map[string]any)["entry_id"])
	assert.Equal(t, float64(2), entries[0].(map[string]any)["count"])

	// draws are an hour apart from 00:00; from 01:00 on only B@01:00 and A@02:00 remain
	resp, body = do(t, http.MethodGet, srv.URL+"/pools/weapons/users/alice/stats?since=2026-06-01T01:00:00Z", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["total"])

	resp, body = do(t, http.MethodGet, srv.URL+"/pools/weapons/users/alice/stats?until=soon", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", errorCode(body))

	resp, body = do(t, http.MethodGet, srv.URL+"/pools/weapons/users/alice/stats?since=2026-06-02&until=2026-06-01", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))
}

func TestPutPool(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	def := `{"rule":{"kind":"exclude_tag"},"entries":[{"id":"helm","weight":1,"tags":["head"]},{"id":"mail","weight":2,"tags":["body"]}]}`

	resp, body := do(t, http.MethodPut, srv.URL+"/pools/armor", def)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["changed"])
	pool := body["pool"].(map[string]any)
	assert.Equal(t, "armor", pool["id"])
	assert.Equal(t, float64(1), pool["version"])

	resp, body = do(t, http.MethodPut, srv.URL+"/pools/armor", def)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["changed"])

	resp, body = do(t, http.MethodGet, srv.URL+"/pools/armor", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["content_hash"])
	assert.Nil(t, body["changed"])

	resp, body = do(t, http.MethodPut, srv.URL+"/pools/armor", `{"entries":[{"id":"helm","weight":0}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))

	resp, body = do(t, http.MethodPut, srv.URL+"/pools/armor", `{"id":"weapons","entries":[{"id":"helm","weight":1}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", errorCode(body))
}

func TestListPoolsAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, body := do(t, http.MethodGet, srv.URL+"/pools", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["pools"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "weapons", list[0].(map[string]any)["id"])

	resp, body = do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_Failing(t *testing.T) {
	srv, _ := newTestServer(t, Config{Health: func(context.Context) error { return errors.New("database is closed") }})

	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "")

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "UNHEALTHY", errorCode(body))
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, Config{AllowedOrigins: []string{"https://hunters.example"}})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/pools", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://hunters.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "https://hunters.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(model.KindValidation))
	assert.Equal(t, http.StatusNotFound, statusFor(model.KindPoolNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(model.KindPoolExhausted))
	assert.Equal(t, http.StatusLocked, statusFor(model.KindContention))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(model.KindTimeout))
	assert.Equal(t, http.StatusInternalServerError, statusFor(model.KindPersistence))
	assert.Equal(t, http.StatusInternalServerError, statusFor(""))
}

func TestWriteErr_Abandoned(t *testing.T) {
	rec := httptest.NewRecorder()

	writeErr(rec, context.Canceled)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "REQUEST_ABANDONED")
}
