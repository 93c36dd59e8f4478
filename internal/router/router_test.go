package router

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

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulkmail/bulkmail/internal/campaign"
	"github.com/bulkmail/bulkmail/internal/config"
	"github.com/bulkmail/bulkmail/internal/email"
	"github.com/bulkmail/bulkmail/internal/handler"
	"github.com/bulkmail/bulkmail/internal/logger"
	"github.com/bulkmail/bulkmail/internal/middleware"
	"github.com/bulkmail/bulkmail/internal/model"
	"github.com/bulkmail/bulkmail/internal/realtime"
	"github.com/bulkmail/bulkmail/internal/recipient"
	"github.com/bulkmail/bulkmail/internal/service"
)

type testServer struct {
	srv *httptest.Server
	svc *service.BulkMailService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewWithWriter(io.Discard, "info", "json")

	cfg := &config.Config{}
	cfg.Server.MaxUploadSize = 1 << 20
	cfg.Email.FromName = "Code Center"
	cfg.Email.Subject = "News"
	cfg.Email.Provider = "log"

	ctx, cancel := context.WithCancel(context.Background())
	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	svc := service.NewBulkMailService(service.Options{
		Source:     recipient.NewStaticSource([]string{"a@x.com", "bad", "b@y.com"}, false),
		Runner:     campaign.NewRunner(email.NewLogSender(log), 0, campaign.PolicyContinue, time.Second, log),
		FromName:   cfg.Email.FromName,
		Subject:    cfg.Email.Subject,
		Publishers: []service.Publisher{hub},
	}, log)

	h := handler.New(nil, nil, log, cfg, svc)
	srv := httptest.NewServer(New(h, middleware.New(nil, log, cfg), hub, cfg))

	t.Cleanup(func() {
		srv.Close()
		_ = svc.Close(context.Background())
		cancel()
	})
	return &testServer{srv: srv, svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (ts *testServer) upload(t *testing.T, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, _ = part.Write([]byte(content))
	require.NoError(t, mw.Close())

	resp, err := ts.srv.Client().Post(ts.srv.URL+"/api/v1/recipients/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func TestIndexPage(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "Code Center")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestSendFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/send/start", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "empty_template", errorCode(body))

	resp, _ = ts.do(t, http.MethodPut, "/api/v1/template", handler.TemplateRequest{Template: "Hello everyone"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, "/api/v1/send/start", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "no_recipients", errorCode(body))

	resp, body = ts.do(t, http.MethodPost, "/api/v1/recipients/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["recipients"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/send/start", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, body["runId"])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.svc.Wait(ctx))

	resp, body = ts.do(t, http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st model.State
	raw, _ := json.Marshal(body)
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Equal(t, 2, st.Sent)
	assert.Equal(t, 0, st.Failed)
	assert.Equal(t, "Done! 2 sent, 0 failed", st.Status.Message)
	assert.False(t, st.Running)

	resp, body = ts.do(t, http.MethodPost, "/api/v1/send/stop", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "not_running", errorCode(body))
}

func TestUploadRecipients(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.upload(t, "list.csv", "email\nada@x.com\nnot-an-address\nbob@y.org\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	r, body := ts.do(t, http.MethodGet, "/api/v1/recipients", nil)
	require.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, []interface{}{"ada@x.com", "bob@y.org"}, body["recipients"])
	assert.Equal(t, "file:list.csv", body["source"])

	resp = ts.upload(t, "list.pdf", "whatever")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestUploadRequiresFile(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.srv.Client().Post(ts.srv.URL+"/api/v1/recipients/upload", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAutoRefreshToggle(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/auto-refresh", handler.AutoRefreshRequest{Enabled: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["autoRefresh"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/auto-refresh", handler.AutoRefreshRequest{Enabled: false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["autoRefresh"])
}

func TestInvalidBody(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPut, "/api/v1/template", map[string]string{"unknown": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", errorCode(body))
}

func TestHistoryDisabled(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/runs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "history_disabled", errorCode(body))

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketReceivesState(t *testing.T) {
	ts := newTestServer(t)

	u := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	// registration happens on the hub goroutine
	time.Sleep(50 * time.Millisecond)

	resp, _ := ts.do(t, http.MethodPut, "/api/v1/template", handler.TemplateRequest{Template: "Hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Type string      `json:"type"`
		Data model.State `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, realtime.EventState, env.Type)
	assert.Equal(t, "Hi", env.Data.Template)
}
