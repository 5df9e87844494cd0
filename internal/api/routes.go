package api

import (
	"github.com/gin-gonic/gin"
	"github.com/youruser/dpframe/internal/share"
)

func RegisterRoutes(r *gin.Engine, s *Server) {
	api := r.Group("/api")
	{
		api.GET("/health", health)
		api.GET("/qr", qrHandler)
		api.GET("/frames", s.listFrames)
		api.POST("/sessions", s.createSession)

		sess := api.Group("/sessions/:id", s.withSession)
		{
			sess.GET("", s.getStatus)
			sess.DELETE("", s.deleteSession)
			sess.POST("/image", s.uploadImage)
			sess.POST("/zoom", s.setZoom)
			sess.POST("/reset", s.reset)
			sess.POST("/recenter", s.recenter)
			sess.POST("/frame", s.switchFrame)
			sess.POST("/pointer", s.pointer)
			sess.GET("/preview", s.preview)
			sess.GET("/export", s.download)
			sess.POST("/share", s.share)
			sess.GET("/ws", s.live)
		}
	}

	if fs, ok := s.sharer.(*share.Filesystem); ok {
		r.Static("/shared", fs.Dir())
	}
}
