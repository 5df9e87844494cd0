package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youruser/dpframe/internal/export"
	"github.com/youruser/dpframe/internal/frames"
	"github.com/youruser/dpframe/internal/session"
	"github.com/youruser/dpframe/internal/share"
	"github.com/youruser/dpframe/internal/viewport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func pngOf(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixture struct {
	router   *gin.Engine
	sessions *session.Manager
}

func newFixture(t *testing.T, sharer share.Sharer) *fixture {
	t.Helper()
	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame1.png")
	require.NoError(t, os.WriteFile(framePath, pngOf(t, 100, 100, color.NRGBA{}), 0o644))
	catalog, err := frames.NewCatalog([]frames.Frame{
		{ID: "classic", Label: "Classic", Path: framePath, Default: true},
		{ID: "broken", Label: "Broken", Path: filepath.Join(dir, "missing.png")},
	})
	require.NoError(t, err)

	opts := session.Options{
		PreviewSize: 100,
		Limits:      viewport.DefaultLimits(),
		ExportSizes: export.Sizes{200, 400},
		MaxPixels:   10000,
	}
	m := session.NewManager(opts, session.Deps{}, catalog, 0)

	r := gin.New()
	RegisterRoutes(r, NewServer(m, sharer, 5<<20, nil))
	return &fixture{router: r, sessions: m}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) create(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/sessions", nil, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Session session.Status `json:"session"`
		Notice  string         `json:"notice"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Notice)
	assert.Equal(t, "classic", resp.Session.Frame)
	return resp.Session.ID
}

func (f *fixture) upload(t *testing.T, id string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	return f.uploadForm(t, id, data, nil)
}

func (f *fixture) uploadForm(t *testing.T, id string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", "me.png")
	require.NoError(t, err)
	part.Write(data)
	require.NoError(t, mw.Close())
	return f.do(t, http.MethodPost, "/api/sessions/"+id+"/image", body.Bytes(), mw.FormDataContentType())
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["error"]
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodGet, "/api/sessions/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportWithoutPhoto(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)
	w := f.do(t, http.MethodGet, "/api/sessions/"+id+"/export", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Upload photo first", errorOf(t, w))
}

func TestUploadZoomDragDownload(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	w := f.upload(t, id, pngOf(t, 80, 60, color.NRGBA{R: 255, A: 255}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/sessions/"+id+"/zoom", []byte(`{"zoom":1.5}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	var st session.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "1.50x", st.ZoomText)

	rect := `"rect":{"left":0,"top":0,"width":100,"height":100}`
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/pointer", []byte(`{"kind":"down","pointer_id":1,"client_x":50,"client_y":50,`+rect+`}`), "application/json")
	w = f.do(t, http.MethodPost, "/api/sessions/"+id+"/pointer", []byte(`{"kind":"move","pointer_id":1,"client_x":70,"client_y":30,`+rect+`}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	var moved struct {
		Session  session.Status `json:"session"`
		Rendered bool           `json:"rendered"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &moved))
	assert.True(t, moved.Rendered)
	assert.Equal(t, viewport.State{Zoom: 1.5, PanX: 20, PanY: -20}, moved.Session.Viewport)

	w = f.do(t, http.MethodGet, "/api/sessions/"+id+"/export?size=400", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="dp-400.png"`, w.Header().Get("Content-Disposition"))
	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())

	w = f.do(t, http.MethodGet, "/api/sessions/"+id+"/export?size=333", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/sessions/"+id+"/reset", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, viewport.Default(), st.Viewport)
}

func TestUploadRejectsGarbage(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)
	w := f.upload(t, id, []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Could not read that image", errorOf(t, w))
}

func TestUploadRejectsOversizedDimensions(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	// 120x100 is over the fixture's 10000 pixel budget
	w := f.upload(t, id, pngOf(t, 120, 100, color.NRGBA{R: 255, A: 255}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Image dimensions are too large", errorOf(t, w))

	w = f.do(t, http.MethodGet, "/api/sessions/"+id, nil, "")
	var st session.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.HasImage)
}

func TestUploadRejectsMalformedRemoveBG(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	w := f.uploadForm(t, id, pngOf(t, 8, 8, color.NRGBA{R: 255, A: 255}), map[string]string{"remove_bg": "yes"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "remove_bg must be true or false", errorOf(t, w))

	w = f.uploadForm(t, id, pngOf(t, 8, 8, color.NRGBA{R: 255, A: 255}), map[string]string{"remove_bg": "false"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestShareFallsBackToInline(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)
	f.upload(t, id, pngOf(t, 10, 10, color.NRGBA{B: 255, A: 255}))

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/share", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `inline; filename="dp-200.png"`, w.Header().Get("Content-Disposition"))
}

func TestShareToFilesystem(t *testing.T) {
	fs, err := share.NewFilesystem(t.TempDir(), "/shared")
	require.NoError(t, err)
	f := newFixture(t, fs)
	id := f.create(t)
	f.upload(t, id, pngOf(t, 10, 10, color.NRGBA{B: 255, A: 255}))

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/share?size=200", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.URL, "/shared/"))

	w = f.do(t, http.MethodGet, resp.URL, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	_, err = png.Decode(w.Body)
	assert.NoError(t, err)
}

func TestFramesAndSwitch(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	w := f.do(t, http.MethodGet, "/api/frames?session="+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"classic","label":"Classic","active":true`)

	w = f.do(t, http.MethodPost, "/api/sessions/"+id+"/frame", []byte(`{"frame":"broken"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Frame could not be loaded")

	w = f.do(t, http.MethodPost, "/api/sessions/"+id+"/frame", []byte(`{"frame":"nope"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQR(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodGet, "/api/qr?text=hello&size=128", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())

	w = f.do(t, http.MethodGet, "/api/qr", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLiveChannel(t *testing.T) {
	f := newFixture(t, nil)
	sess, loaded := f.sessions.Create(context.Background())
	require.NoError(t, <-loaded)
	_, err := sess.Upload(context.Background(), pngOf(t, 80, 60, color.NRGBA{R: 255, A: 255}), "me.png", false)
	require.NoError(t, err)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + sess.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readPreview := func() {
		typ, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.BinaryMessage, typ)
		_, err = png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
	}
	readStatus := func() liveReply {
		var reply liveReply
		require.NoError(t, conn.ReadJSON(&reply))
		return reply
	}

	readPreview()
	readStatus()

	rect := map[string]float64{"left": 0, "top": 0, "width": 100, "height": 100}
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":  "pointer",
		"event": map[string]any{"kind": "down", "pointer_id": 3, "client_x": 10, "client_y": 10, "rect": rect},
	}))
	assert.True(t, readStatus().Session.Dragging)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":  "pointer",
		"event": map[string]any{"kind": "move", "pointer_id": 3, "client_x": 15, "client_y": 12, "rect": rect},
	}))
	readPreview()
	st := readStatus().Session
	assert.Equal(t, 5.0, st.Viewport.PanX)
	assert.Equal(t, 2.0, st.Viewport.PanY)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "recenter"}))
	readPreview()
	st = readStatus().Session
	assert.Zero(t, st.Viewport.PanX)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	assert.Equal(t, "unknown message type", readStatus().Error)
}
