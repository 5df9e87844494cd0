package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/youruser/dpframe/internal/api"
	"github.com/youruser/dpframe/internal/config"
	"github.com/youruser/dpframe/internal/export"
	"github.com/youruser/dpframe/internal/frames"
	imagepkg "github.com/youruser/dpframe/internal/image"
	"github.com/youruser/dpframe/internal/segment"
	"github.com/youruser/dpframe/internal/session"
	"github.com/youruser/dpframe/internal/share"
)

func loadWatermark(ctx context.Context, loader *imagepkg.Loader, cfg *config.Config) imagepkg.ImageAsset {
	switch {
	case cfg.WatermarkPath != "":
		wm, err := loader.Load(ctx, cfg.WatermarkPath)
		if err != nil {
			logrus.WithError(err).Warn("watermark unavailable; exports will have none")
		}
		return wm
	case cfg.WatermarkQRText != "":
		wm, err := imagepkg.QRWatermark(cfg.WatermarkQRText, 512)
		if err != nil {
			logrus.WithError(err).Warn("qr watermark failed; exports will have none")
		}
		return wm
	}
	return imagepkg.ImageAsset{}
}

func loadCatalog(path string) *frames.Catalog {
	catalog, err := frames.LoadCatalog(path)
	if err != nil {
		// best-effort: the app still works, just without frames
		logrus.WithError(err).WithField("path", path).Warn("failed to load frame catalog")
		catalog, _ = frames.NewCatalog(nil)
	}
	logrus.WithField("count", len(catalog.List())).Info("frames loaded")
	return catalog
}

func main() {
	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", "", "Set the server listen address (default :$PORT)")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	addr := *listenAddr
	if addr == "" {
		addr = ":" + cfg.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := imagepkg.NewLoader()
	deps := session.Deps{
		Loader:    loader,
		Watermark: loadWatermark(ctx, loader, cfg),
	}
	if cfg.SegmentURL != "" {
		client := segment.NewClient(cfg.SegmentURL)
		if err := client.CheckHealth(ctx); err != nil {
			logrus.WithError(err).Warn("segmentation service not available")
		}
		deps.Segmenter = client
	}

	sharer, err := share.New(ctx, share.Config{
		Backend: cfg.ShareBackend,
		Dir:     cfg.ShareDir,
		BaseURL: cfg.ShareBaseURL,
		Bucket:  cfg.S3Bucket,
	})
	if err != nil {
		logrus.WithError(err).Fatal("share backend")
	}

	opts := session.Options{
		PreviewSize: cfg.PreviewSize,
		Limits:      cfg.Zoom,
		Order:       cfg.DrawOrder,
		ExportSizes: export.Sizes(cfg.ExportSizes),
		MaxPixels:   cfg.MaxUploadPixels,
	}
	sessions := session.NewManager(opts, deps, loadCatalog(cfg.FramesCSV), cfg.SessionTTL)
	go sessions.Run(time.Minute)
	defer sessions.Close()

	if level < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger())
	api.RegisterRoutes(r, api.NewServer(sessions, sharer, cfg.MaxUploadBytes, cfg.AllowedOrigins))

	handler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	})(r)

	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":       addr,
			"draw_order": cfg.DrawOrder.String(),
			"preview":    cfg.PreviewSize,
		}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("shutdown")
	}
}
