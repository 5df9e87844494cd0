package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/youruser/dpframe/internal/export"
	imagepkg "github.com/youruser/dpframe/internal/image"
	"github.com/youruser/dpframe/internal/input"
	"github.com/youruser/dpframe/internal/session"
	"github.com/youruser/dpframe/internal/share"
)

const frameWait = 10 * time.Second

// Server holds what the handlers share.
type Server struct {
	sessions       *session.Manager
	sharer         share.Sharer
	maxUpload      int64
	allowedOrigins []string
}

func NewServer(sessions *session.Manager, sharer share.Sharer, maxUpload int64, allowedOrigins []string) *Server {
	return &Server{
		sessions:       sessions,
		sharer:         sharer,
		maxUpload:      maxUpload,
		allowedOrigins: allowedOrigins,
	}
}

// respondError turns an operation failure into a short user-facing message.
func respondError(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "something went wrong"

	var (
		loadErr *imagepkg.AssetLoadError
		segErr  *imagepkg.SegmentationError
		encErr  *imagepkg.EncodingError
	)
	switch {
	case errors.Is(err, imagepkg.ErrNoImage):
		status, msg = http.StatusBadRequest, "Upload photo first"
	case errors.Is(err, imagepkg.ErrSuperseded):
		status, msg = http.StatusConflict, "A newer request replaced this one"
	case errors.Is(err, imagepkg.ErrTooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "Image dimensions are too large"
	case errors.Is(err, session.ErrSizeNotAllowed):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.As(err, &loadErr):
		status, msg = http.StatusBadRequest, "Could not read that image"
	case errors.As(err, &segErr):
		status, msg = http.StatusBadGateway, "Background removal failed"
	case errors.As(err, &encErr):
		status, msg = http.StatusInternalServerError, "Could not encode the image"
	}

	log := logrus.WithError(err).WithField("status", status)
	if id := c.Param("id"); id != "" {
		log = log.WithField("session_id", id)
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Warn("request rejected")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// qr endpoint returns a PNG of a QR for "text", e.g. a share link.
func qrHandler(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	size := 400
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v >= 64 && v <= 2048 {
		size = v
	}
	b, err := imagepkg.GenerateQRPNG(text, size)
	if err != nil {
		respondError(c, &imagepkg.EncodingError{Err: err})
		return
	}
	c.Data(http.StatusOK, "image/png", b)
}

func (s *Server) listFrames(c *gin.Context) {
	active := ""
	if id := c.Query("session"); id != "" {
		if sess, ok := s.sessions.Get(id); ok {
			active = sess.Status().Frame
		}
	}
	type item struct {
		ID     string `json:"id"`
		Label  string `json:"label"`
		Active bool   `json:"active"`
	}
	out := []item{}
	for _, f := range s.sessions.Catalog().List() {
		out = append(out, item{ID: f.ID, Label: f.Label, Active: f.ID == active})
	}
	c.JSON(http.StatusOK, gin.H{"frames": out})
}

// waitFrame collects a frame load result. Load failures become a notice
// for the user since the output would miss its overlay.
func waitFrame(ctx context.Context, done <-chan error) string {
	select {
	case err := <-done:
		if err == nil || errors.Is(err, imagepkg.ErrSuperseded) {
			return ""
		}
		return "Frame could not be loaded; export will have no frame"
	case <-ctx.Done():
		return "Frame is still loading"
	case <-time.After(frameWait):
		return "Frame is still loading"
	}
}

func (s *Server) createSession(c *gin.Context) {
	sess, loaded := s.sessions.Create(context.Background())
	notice := waitFrame(c.Request.Context(), loaded)
	c.JSON(http.StatusCreated, gin.H{"session": sess.Status(), "notice": notice})
}

func (s *Server) withSession(c *gin.Context) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Set("session", sess)
	c.Next()
}

func current(c *gin.Context) *session.Session {
	return c.MustGet("session").(*session.Session)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).Status())
}

func (s *Server) deleteSession(c *gin.Context) {
	s.sessions.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) uploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	removeBG := false
	if raw := c.PostForm("remove_bg"); raw != "" {
		if removeBG, err = strconv.ParseBool(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "remove_bg must be true or false"})
			return
		}
	}
	st, err := current(c).Upload(c.Request.Context(), data, fh.Filename, removeBG)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) setZoom(c *gin.Context) {
	var req struct {
		Zoom *float64 `json:"zoom"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Zoom == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zoom is required"})
		return
	}
	c.JSON(http.StatusOK, current(c).SetZoom(*req.Zoom))
}

func (s *Server) reset(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).Reset())
}

func (s *Server) recenter(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).Recenter())
}

func (s *Server) switchFrame(c *gin.Context) {
	var req struct {
		Frame string `json:"frame"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Frame == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "frame is required"})
		return
	}
	f, ok := s.sessions.Catalog().Get(req.Frame)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown frame"})
		return
	}
	sess := current(c)
	notice := waitFrame(c.Request.Context(), sess.SwitchFrame(context.Background(), f))
	c.JSON(http.StatusOK, gin.H{"session": sess.Status(), "notice": notice})
}

func (s *Server) pointer(c *gin.Context) {
	var ev input.PointerEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, rendered := current(c).Pointer(ev)
	c.JSON(http.StatusOK, gin.H{"session": st, "rendered": rendered})
}

func (s *Server) preview(c *gin.Context) {
	b, err := current(c).PreviewPNG()
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", b)
}

func (s *Server) exportSize(c *gin.Context) (int, bool) {
	raw := c.Query("size")
	if raw == "" {
		return s.sessions.Options().ExportSizes.Default(), true
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be a number"})
		return 0, false
	}
	return size, true
}

// download renders a fresh artifact and sends it as an attachment.
func (s *Server) download(c *gin.Context) {
	size, ok := s.exportSize(c)
	if !ok {
		return
	}
	art, err := current(c).Export(size)
	if err != nil {
		respondError(c, err)
		return
	}
	sendArtifact(c, art, "attachment")
}

// share publishes a fresh artifact through the configured backend. Without
// one, the artifact is returned inline for the client to open in a new view.
func (s *Server) share(c *gin.Context) {
	size, ok := s.exportSize(c)
	if !ok {
		return
	}
	art, err := current(c).Export(size)
	if err != nil {
		respondError(c, err)
		return
	}
	if s.sharer == nil {
		sendArtifact(c, art, "inline")
		return
	}
	url, err := s.sharer.Share(c.Request.Context(), art)
	if err != nil {
		logrus.WithError(err).WithField("session_id", c.Param("id")).Error("share failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Sharing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "filename": art.Filename})
}

func sendArtifact(c *gin.Context, art *export.Artifact, disposition string) {
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, art.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, art.ContentType, art.Data)
}

// RequestLogger logs each request through logrus.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
		} else {
			entry.Debug("request")
		}
	}
}
