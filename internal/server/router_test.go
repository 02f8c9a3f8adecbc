package server

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterfootprint/backend/internal/config"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

const analysisReply = `{"item_name":"Coffee","water_footprint_liters":140,"severity":"Medium","translation":{"hindi":{"item_name":"कॉफ़ी"}}}`

func TestHealth(t *testing.T) {
	router := newTestRouter(t, baseTestConfig, nil, nil)
	rec := performJSONRequest(t, router, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	router := newTestRouter(t, baseTestConfig, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestReady(t *testing.T) {
	store := newMemoryHistoryStore()
	router := newTestRouter(t, baseTestConfig, &fakeGenerator{}, store)

	rec := performJSONRequest(t, router, http.MethodGet, "/api/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"history":"ok","model":"configured"}}`, rec.Body.String())

	store.pingErr = errors.New("connection refused")
	rec = performJSONRequest(t, router, http.MethodGet, "/api/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"history":"unreachable","model":"configured"}}`, rec.Body.String())

	router = newTestRouter(t, baseTestConfig, nil, nil)
	rec = performJSONRequest(t, router, http.MethodGet, "/api/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"history":"not connected","model":"not configured"}}`, rec.Body.String())
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	router := newTestRouter(t, baseTestConfig, nil, nil)
	performJSONRequest(t, router, http.MethodGet, "/api/health", nil)

	rec := performJSONRequest(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/api/health",status="200"} 1`)
}

func TestHistoryRoundTrip(t *testing.T) {
	store := newMemoryHistoryStore()
	router := newTestRouter(t, baseTestConfig, nil, store)

	rec := performJSONRequest(t, router, http.MethodGet, "/api/history?user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = performJSONRequest(t, router, http.MethodPost, "/api/history", map[string]any{
		"user_id": "u1",
		"item":    map[string]any{"item_name": "Coffee", "water_footprint_liters": 140},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","message":"Saved to history"}`, rec.Body.String())

	rec = performJSONRequest(t, router, http.MethodGet, "/api/history?user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decodeJSONList(t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "u1", records[0]["user_id"])
	assert.Equal(t, "Coffee", records[0]["item_name"])
	assert.EqualValues(t, 140, records[0]["water_footprint_liters"])
	assert.NotEmpty(t, records[0]["timestamp"])
	assert.NotContains(t, records[0], "_id")

	rec = performJSONRequest(t, router, http.MethodGet, "/api/history?user_id=u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSONList(t, rec))
}

func TestGetHistoryRequiresUserID(t *testing.T) {
	store := newMemoryHistoryStore()
	router := newTestRouter(t, baseTestConfig, nil, store)

	rec := performJSONRequest(t, router, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User ID required", responseError(t, rec))

	lists, _ := store.counts()
	assert.Zero(t, lists)
}

func TestAddHistoryRejectsInvalidPayloadBeforeStore(t *testing.T) {
	store := newMemoryHistoryStore()
	router := newTestRouter(t, baseTestConfig, nil, store)

	payloads := []any{
		map[string]any{"item": map[string]any{"item_name": "Tea"}},
		map[string]any{"user_id": "u1"},
		map[string]any{"user_id": "", "item": map[string]any{}},
		map[string]any{"user_id": 42, "item": map[string]any{}},
		map[string]any{"user_id": "u1", "item": "Tea"},
		map[string]any{"user_id": "u1", "item": []any{"Tea"}},
		"not json",
	}
	for _, payload := range payloads {
		rec := performJSONRequest(t, router, http.MethodPost, "/api/history", payload)
		require.Equal(t, http.StatusBadRequest, rec.Code, "payload %#v", payload)
		assert.Equal(t, "Invalid data format", responseError(t, rec))
	}

	_, appends := store.counts()
	assert.Zero(t, appends)
}

func TestHistoryWithoutStore(t *testing.T) {
	router := newTestRouter(t, baseTestConfig, nil, nil)

	rec := performJSONRequest(t, router, http.MethodGet, "/api/history?user_id=u1", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Database not connected", responseError(t, rec))

	rec = performJSONRequest(t, router, http.MethodPost, "/api/history", map[string]any{
		"user_id": "u1",
		"item":    map[string]any{"item_name": "Tea"},
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Database not connected", responseError(t, rec))
}

func TestHistoryStoreFailures(t *testing.T) {
	store := newMemoryHistoryStore()
	store.err = unavailable("find history", errors.New("socket closed"))
	router := newTestRouter(t, baseTestConfig, nil, store)

	rec := performJSONRequest(t, router, http.MethodGet, "/api/history?user_id=u1", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch history", responseError(t, rec))

	rec = performJSONRequest(t, router, http.MethodPost, "/api/history", map[string]any{
		"user_id": "u1",
		"item":    map[string]any{"item_name": "Tea"},
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to save history", responseError(t, rec))
}

func TestFootprintText(t *testing.T) {
	model := &fakeGenerator{reply: analysisReply}
	router := newTestRouter(t, baseTestConfig, model, nil)

	rec := performJSONRequest(t, router, http.MethodPost, "/api/footprint", map[string]any{"text": "coffee"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, analysisReply, rec.Body.String())

	calls := model.calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasSuffix(calls[0].Prompt, "\nInput item: coffee"))
	assert.True(t, calls[0].ExpectJSON)
	assert.Empty(t, calls[0].Image)
}

func TestFootprintImageUpload(t *testing.T) {
	model := &fakeGenerator{reply: analysisReply}
	router := newTestRouter(t, baseTestConfig, model, nil)

	rec := postImage(t, router, "image", "photo.png", pngHeader)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, analysisReply, rec.Body.String())

	calls := model.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, pngHeader, calls[0].Image)
	assert.Equal(t, "image/png", calls[0].ImageMIMEType)
	assert.Equal(t, buildAnalysisPrompt(), calls[0].Prompt)
}

func TestFootprintRejectsUndecodableImage(t *testing.T) {
	model := &fakeGenerator{reply: analysisReply}
	router := newTestRouter(t, baseTestConfig, model, nil)

	rec := postImage(t, router, "image", "notes.txt", []byte("plain text, not an image"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "cannot identify image file", responseError(t, rec))
	assert.Empty(t, model.calls())
}

func TestFootprintWithoutInput(t *testing.T) {
	model := &fakeGenerator{reply: analysisReply}
	router := newTestRouter(t, baseTestConfig, model, nil)

	for _, body := range []any{map[string]any{}, map[string]any{"text": ""}, map[string]any{"text": "   "}, nil} {
		rec := performJSONRequest(t, router, http.MethodPost, "/api/footprint", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No image or text provided", responseError(t, rec))
	}
	assert.Empty(t, model.calls())
}

func TestAIRoutesWithoutAPIKey(t *testing.T) {
	router := newTestRouter(t, baseTestConfig, nil, nil)

	cases := []struct {
		path string
		body any
	}{
		{path: "/api/footprint", body: map[string]any{"text": "coffee"}},
		{path: "/api/chat", body: map[string]any{"message": "hi"}},
		{path: "/api/analyze-habits", body: map[string]any{"items": []any{map[string]any{"item_name": "Beef"}}}},
	}
	for _, tc := range cases {
		rec := performJSONRequest(t, router, http.MethodPost, tc.path, tc.body)
		require.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
		assert.Equal(t, "API Key not configured", responseError(t, rec), tc.path)
	}
}

func TestFootprintModelFailures(t *testing.T) {
	model := &fakeGenerator{err: ErrModelUnavailable}
	router := newTestRouter(t, baseTestConfig, model, nil)

	rec := performJSONRequest(t, router, http.MethodPost, "/api/footprint", map[string]any{"text": "coffee"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "No suitable Gemini model found.", responseError(t, rec))

	model = &fakeGenerator{reply: "Sure! The footprint of coffee is 140 L."}
	router = newTestRouter(t, baseTestConfig, model, nil)
	rec = performJSONRequest(t, router, http.MethodPost, "/api/footprint", map[string]any{"text": "coffee"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, responseError(t, rec))
}

func TestChat(t *testing.T) {
	model := &fakeGenerator{reply: `{"reply":"Turn off the tap while brushing."}`}
	router := newTestRouter(t, baseTestConfig, model, nil)

	rec := performJSONRequest(t, router, http.MethodPost, "/api/chat", map[string]any{"message": "tips?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"Turn off the tap while brushing."}`, rec.Body.String())
	require.Len(t, model.calls(), 1)
	assert.Contains(t, model.calls()[0].Prompt, "User Query: tips?")

	rec = performJSONRequest(t, router, http.MethodPost, "/api/chat", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No message provided", responseError(t, rec))
	assert.Len(t, model.calls(), 1)
}

func TestChatFailureReply(t *testing.T) {
	for _, model := range []*fakeGenerator{
		{err: ErrModelUnavailable},
		{reply: "not json at all"},
	} {
		router := newTestRouter(t, baseTestConfig, model, nil)
		rec := performJSONRequest(t, router, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "I'm having trouble thinking right now. Try again!", responseError(t, rec))
	}
}

func TestAnalyzeHabits(t *testing.T) {
	reply := `{"most_consuming":["Beef"],"usage_pattern":"meat heavy","recommendations":["a","b","c"]}`
	model := &fakeGenerator{reply: reply}
	router := newTestRouter(t, baseTestConfig, model, nil)

	rec := performJSONRequest(t, router, http.MethodPost, "/api/analyze-habits", map[string]any{
		"items": []any{
			map[string]any{"item_name": "Beef", "water_footprint_liters": 15415},
			map[string]any{"item_name": "Rice", "water_footprint_liters": 2497},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, reply, rec.Body.String())

	calls := model.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "- Beef: 15415 L\n- Rice: 2497 L")
}

func TestAnalyzeHabitsEmptyListSkipsModel(t *testing.T) {
	model := &fakeGenerator{reply: `{}`}
	router := newTestRouter(t, baseTestConfig, model, nil)

	for _, body := range []string{`{"items":[]}`, `{"items":null}`} {
		rec := performJSONRequest(t, router, http.MethodPost, "/api/analyze-habits", body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.JSONEq(t, `{"analysis":"No history available yet. Scan more items!","recommendations":[]}`, rec.Body.String())
	}
	assert.Empty(t, model.calls())

	// Empty input is answered even when no model is configured.
	router = newTestRouter(t, baseTestConfig, nil, nil)
	rec := performJSONRequest(t, router, http.MethodPost, "/api/analyze-habits", `{"items":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyzeHabitsValidation(t *testing.T) {
	model := &fakeGenerator{reply: `{}`}
	router := newTestRouter(t, baseTestConfig, model, nil)

	rec := performJSONRequest(t, router, http.MethodPost, "/api/analyze-habits", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No items provided", responseError(t, rec))

	rec = performJSONRequest(t, router, http.MethodPost, "/api/analyze-habits", `{"items":"Beef"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Items must be a list", responseError(t, rec))

	model.err = ErrModelUnavailable
	rec = performJSONRequest(t, router, http.MethodPost, "/api/analyze-habits", `{"items":[{"item_name":"Beef"}]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to analyze habits.", responseError(t, rec))
}

func TestUnknownAPIPath(t *testing.T) {
	router := newTestRouter(t, staticTestConfig(t), nil, nil)

	for _, path := range []string{"/api/unknown", "/api", "/api/history/extra"} {
		rec := performJSONRequest(t, router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "Path not found", responseError(t, rec))
	}
}

func TestFrontendFallback(t *testing.T) {
	cfg := staticTestConfig(t)
	router := newTestRouter(t, cfg, nil, nil)

	rec := performJSONRequest(t, router, http.MethodGet, "/dashboard/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<div id="root"></div>`)

	rec = performJSONRequest(t, router, http.MethodGet, "/assets/app.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log('app')", rec.Body.String())

	rec = performJSONRequest(t, router, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<div id="root"></div>`)
}

func TestFrontendNotBuilt(t *testing.T) {
	cfg := newTestConfig()
	cfg.StaticDir = t.TempDir()
	router := newTestRouter(t, cfg, nil, nil)

	rec := performJSONRequest(t, router, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Frontend not built", responseError(t, rec))
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, baseTestConfig, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func staticTestConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, staticEntryFile), []byte(`<html><body><div id="root"></div></body></html>`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log('app')"), 0o644))

	cfg := newTestConfig()
	cfg.StaticDir = dir
	return cfg
}

func postImage(t *testing.T, router http.Handler, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/footprint", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHistoryRoundTripKeepsUserIDVerbatim(t *testing.T) {
	store := newMemoryHistoryStore()
	router := newTestRouter(t, baseTestConfig, nil, store)

	rec := performJSONRequest(t, router, http.MethodPost, "/api/history", map[string]any{
		"user_id": " alice ",
		"item":    map[string]any{"item_name": "Tea"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = performJSONRequest(t, router, http.MethodGet, "/api/history?user_id=%20alice%20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decodeJSONList(t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, " alice ", records[0]["user_id"])
	assert.Equal(t, "Tea", records[0]["item_name"])

	rec = performJSONRequest(t, router, http.MethodGet, "/api/history?user_id=%20%20", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User ID required", responseError(t, rec))
}

func TestAnalyzeHabitsFalsyItemsAreEmpty(t *testing.T) {
	model := &fakeGenerator{reply: `{}`}
	router := newTestRouter(t, baseTestConfig, model, nil)

	for _, body := range []string{`{"items":{}}`, `{"items":""}`, `{"items":false}`, `{"items":0}`} {
		rec := performJSONRequest(t, router, http.MethodPost, "/api/analyze-habits", body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.JSONEq(t, `{"analysis":"No history available yet. Scan more items!","recommendations":[]}`, rec.Body.String())
	}
	assert.Empty(t, model.calls())

	rec := performJSONRequest(t, router, http.MethodPost, "/api/analyze-habits", `{"items":{"item_name":"Beef"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Items must be a list", responseError(t, rec))
}

func TestMetricsCountRecoveredPanics(t *testing.T) {
	router := newTestRouter(t, baseTestConfig, nil, nil)
	router.GET("/api/panics", func(*gin.Context) {
		panic("boom")
	})

	rec := performJSONRequest(t, router, http.MethodGet, "/api/panics", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = performJSONRequest(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/api/panics",status="500"} 1`)
}
