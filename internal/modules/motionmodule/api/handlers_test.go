package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/geneseez/geneseez/internal/config"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/core/session"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	mp4Bytes = []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0, 'i', 's', 'o', 'm', 'i', 's', 'o', '2', 0xca, 0xfe}
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, mutate func(*config.Config)) *gin.Engine {
	t.Helper()
	return newTestRouterWithPing(t, mutate, time.Second)
}

func newTestRouterWithPing(t *testing.T, mutate func(*config.Config), ping time.Duration) *gin.Engine {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Generation.TickInterval = 2 * time.Millisecond
	cfg.Generation.CompletionDelay = 40 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	sessions := session.NewManager(cfg, nil)
	t.Cleanup(sessions.Shutdown)

	handler := NewAPIHandler(sessions, Options{
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		AllowedOrigins:  cfg.Security.AllowedOrigins,
		PingInterval:    ping,
	}, nil)

	r := gin.New()
	RegisterRoutes(r, handler)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) types.Snapshot {
	t.Helper()
	var snap types.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap), w.Body.String())
	return snap
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	w := do(r, httptest.NewRequest(http.MethodPost, BasePath+"/sessions", nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decodeSnapshot(t, w)
	require.NotEmpty(t, snap.SessionID)
	return snap.SessionID
}

func uploadRequest(t *testing.T, id, slot, filename string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(uploadField, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, BasePath+"/sessions/"+id+"/slots/"+slot, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func uploadBoth(t *testing.T, r http.Handler, id string) {
	t.Helper()
	w := do(r, uploadRequest(t, id, "image", "face.png", pngBytes))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(r, uploadRequest(t, id, "video", "dance.mp4", mp4Bytes))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decodeSnapshot(t, w).CanGenerate)
}

func getSnapshot(t *testing.T, r http.Handler, id string) types.Snapshot {
	t.Helper()
	w := do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	return decodeSnapshot(t, w)
}

func TestAPI_FullFlow(t *testing.T) {
	r := newTestRouter(t, nil)
	id := createSession(t, r)

	snap := getSnapshot(t, r, id)
	assert.Equal(t, types.ViewUpload, snap.View)
	assert.False(t, snap.CanGenerate)

	uploadBoth(t, r, id)

	w := do(r, httptest.NewRequest(http.MethodPost, BasePath+"/sessions/"+id+"/generate", nil))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	snap = decodeSnapshot(t, w)
	assert.True(t, snap.IsProcessing)
	assert.Equal(t, types.ViewProcessing, snap.View)

	assert.Eventually(t, func() bool {
		return getSnapshot(t, r, id).HasResult
	}, 2*time.Second, 5*time.Millisecond)

	snap = getSnapshot(t, r, id)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, types.ViewResult, snap.View)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "video/mp4", snap.Result.MediaType)

	w = do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id+"/result", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, mp4Bytes, w.Body.Bytes())

	w = do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id+"/download", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Regexp(t, regexp.MustCompile(`^attachment; filename="geneseez-result-\d+\.mp4"$`), w.Header().Get("Content-Disposition"))
	assert.Equal(t, mp4Bytes, w.Body.Bytes())

	w = do(r, httptest.NewRequest(http.MethodPost, BasePath+"/sessions/"+id+"/reset", nil))
	require.Equal(t, http.StatusOK, w.Code)
	snap = decodeSnapshot(t, w)
	assert.False(t, snap.HasImage)
	assert.False(t, snap.HasVideo)
	assert.False(t, snap.HasResult)
	assert.Equal(t, types.ViewUpload, snap.View)
}

func TestAPI_GenerateConflicts(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.Generation.CompletionDelay = time.Hour
	})
	id := createSession(t, r)

	w := do(r, httptest.NewRequest(http.MethodPost, BasePath+"/sessions/"+id+"/generate", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	uploadBoth(t, r, id)

	w = do(r, httptest.NewRequest(http.MethodPost, BasePath+"/sessions/"+id+"/generate", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	// Everything that mutates inputs is locked while processing
	w = do(r, httptest.NewRequest(http.MethodPost, BasePath+"/sessions/"+id+"/generate", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(r, uploadRequest(t, id, "image", "other.png", pngBytes))
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(r, httptest.NewRequest(http.MethodDelete, BasePath+"/sessions/"+id+"/slots/video", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(r, httptest.NewRequest(http.MethodPost, BasePath+"/sessions/"+id+"/reset", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id+"/download", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"CONFLICT"`)
}

func TestAPI_SlotEndpoints(t *testing.T) {
	r := newTestRouter(t, nil)
	id := createSession(t, r)

	w := do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id+"/slots/image", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, uploadRequest(t, id, "image", "face.png", pngBytes))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id+"/slots/image", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, w.Body.Bytes())

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	req := httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id+"/slots/image", nil)
	req.Header.Set("If-None-Match", etag)
	w = do(r, req)
	assert.Equal(t, http.StatusNotModified, w.Code)

	req = httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id+"/slots/image", nil)
	req.Header.Set("If-None-Match", `"stale", W/`+etag)
	w = do(r, req)
	assert.Equal(t, http.StatusNotModified, w.Code)

	req = httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id+"/slots/image", nil)
	req.Header.Set("If-None-Match", `"stale"`)
	w = do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id+"/slots/image", nil)
	req.Header.Set("Range", "bytes=0-3")
	w = do(r, req)
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, pngBytes[:4], w.Body.Bytes())
	assert.Equal(t, "bytes 0-3/16", w.Header().Get("Content-Range"))

	w = do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id+"/slots/image/datauri", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		URI       string `json:"uri"`
		MediaType string `json:"mediaType"`
		Size      int64  `json:"size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body.URI, "data:image/png;base64,"))
	assert.Equal(t, int64(len(pngBytes)), body.Size)

	w = do(r, httptest.NewRequest(http.MethodDelete, BasePath+"/sessions/"+id+"/slots/image", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeSnapshot(t, w).HasImage)
}

func TestAPI_BadRequests(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.Server.MaxRequestBytes = 1024
	})
	id := createSession(t, r)

	w := do(r, uploadRequest(t, id, "audio", "x.mp3", pngBytes))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPut, BasePath+"/sessions/"+id+"/slots/image", strings.NewReader("not multipart"))
	w = do(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, uploadRequest(t, id, "video", "big.mp4", bytes.Repeat([]byte{1}, 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, getSnapshot(t, r, id).HasVideo)

	w = do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NOT_FOUND"`)
}

func TestAPI_EnforcedLimits(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.Uploads.EnforceLimits = true
	})
	id := createSession(t, r)

	w := do(r, uploadRequest(t, id, "video", "face.png", pngBytes))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, BasePath+"/limits", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var limits types.Limits
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &limits))
	assert.True(t, limits.Enforced)
	assert.Equal(t, "PNG, JPG até 10MB", limits.ImageHint)
	assert.Equal(t, int64(50<<20), limits.VideoMaxBytes)
}

func TestAPI_DeleteSession(t *testing.T) {
	r := newTestRouter(t, nil)
	id := createSession(t, r)

	w := do(r, httptest.NewRequest(http.MethodDelete, BasePath+"/sessions/"+id, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(r, httptest.NewRequest(http.MethodDelete, BasePath+"/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_WebSocketStream(t *testing.T) {
	r := newTestRouter(t, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	id := createSession(t, r)
	uploadBoth(t, r, id)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + BasePath + "/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first WebSocketMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, messageTypeSnapshot, first.Type)
	require.NotNil(t, first.Data)
	assert.True(t, first.Data.CanGenerate)

	w := do(r, httptest.NewRequest(http.MethodPost, BasePath+"/sessions/"+id+"/generate", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg WebSocketMessage
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, messageTypeSnapshot, msg.Type)
		if msg.Data.HasResult {
			assert.Equal(t, 100, msg.Data.Progress)
			assert.False(t, msg.Data.IsProcessing)
			break
		}
	}

	// Tearing the session down closes the stream
	w = do(r, httptest.NewRequest(http.MethodDelete, BasePath+"/sessions/"+id, nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	var closed WebSocketMessage
	require.NoError(t, conn.ReadJSON(&closed))
	assert.Equal(t, messageTypeClosed, closed.Type)
}

func TestAPI_WebSocketKeepsSessionAlive(t *testing.T) {
	r := newTestRouterWithPing(t, func(cfg *config.Config) {
		cfg.Sessions.IdleTimeout = 100 * time.Millisecond
		cfg.Sessions.CleanupInterval = 10 * time.Millisecond
	}, 20*time.Millisecond)
	srv := httptest.NewServer(r)
	defer srv.Close()

	watched := createSession(t, r)
	idle := createSession(t, r)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + BasePath + "/sessions/" + watched + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first WebSocketMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, messageTypeSnapshot, first.Type)

	time.Sleep(300 * time.Millisecond)

	w := do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+idle, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, BasePath+"/sessions/"+watched, nil))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAPI_EventStream(t *testing.T) {
	r := newTestRouter(t, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	id := createSession(t, r)

	resp, err := http.Get(srv.URL + BasePath + "/sessions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	assert.Equal(t, "event:snapshot", scanner.Text())
	require.True(t, scanner.Scan())
	assert.True(t, strings.HasPrefix(scanner.Text(), "data:"))
	assert.Contains(t, scanner.Text(), id)
}

func TestEtagMatches(t *testing.T) {
	hash := strings.Repeat("ab", 32)

	assert.True(t, etagMatches(`"`+hash+`"`, hash))
	assert.True(t, etagMatches(`W/"`+hash+`"`, hash))
	assert.True(t, etagMatches(`"other", "`+hash+`"`, hash))
	assert.True(t, etagMatches("*", hash))
	assert.False(t, etagMatches("", hash))
	assert.False(t, etagMatches(`"other"`, hash))
	assert.False(t, etagMatches(`"`+strings.Repeat("cd", 32)+`"`, hash))
}
