package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	imagepkg "github.com/youruser/dpframe/internal/image"
	"github.com/youruser/dpframe/internal/viewport"
)

type Config struct {
	Port            string
	PreviewSize     int
	ExportSizes     []int
	Zoom            viewport.Limits
	DrawOrder       imagepkg.DrawOrder
	FramesCSV       string
	WatermarkPath   string
	WatermarkQRText string
	SegmentURL      string
	ShareBackend    string
	ShareDir        string
	ShareBaseURL    string
	S3Bucket        string
	SessionTTL      time.Duration
	AllowedOrigins  []string
	MaxUploadBytes  int64
	MaxUploadPixels int
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests need not touch
// the process environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var err error
	cfg := &Config{
		Port:            get("PORT", "8080"),
		FramesCSV:       get("FRAMES_CSV", "data/frames.csv"),
		WatermarkPath:   get("WATERMARK_PATH", ""),
		WatermarkQRText: get("WATERMARK_QR_TEXT", ""),
		SegmentURL:      get("SEGMENT_URL", ""),
		ShareBackend:    get("SHARE_BACKEND", "none"),
		ShareDir:        get("SHARE_DIR", "./data/shared"),
		S3Bucket:        get("S3_BUCKET_NAME", ""),
		AllowedOrigins:  splitList(get("ALLOWED_ORIGINS", "http://localhost:8080")),
	}
	cfg.ShareBaseURL = get("SHARE_BASE_URL", "http://localhost:"+cfg.Port+"/shared")

	if cfg.PreviewSize, err = atoi("PREVIEW_SIZE", get("PREVIEW_SIZE", "1000")); err != nil {
		return nil, err
	}
	if cfg.PreviewSize <= 0 {
		return nil, fmt.Errorf("PREVIEW_SIZE must be positive, got %d", cfg.PreviewSize)
	}

	for _, s := range splitList(get("EXPORT_SIZES", "1080,2160")) {
		n, err := atoi("EXPORT_SIZES", s)
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, fmt.Errorf("EXPORT_SIZES: size must be positive, got %d", n)
		}
		cfg.ExportSizes = append(cfg.ExportSizes, n)
	}
	if len(cfg.ExportSizes) == 0 {
		return nil, fmt.Errorf("EXPORT_SIZES is empty")
	}

	if cfg.Zoom.Min, err = atof("MIN_ZOOM", get("MIN_ZOOM", "1")); err != nil {
		return nil, err
	}
	if cfg.Zoom.Max, err = atof("MAX_ZOOM", get("MAX_ZOOM", "3")); err != nil {
		return nil, err
	}
	if err := cfg.Zoom.Validate(); err != nil {
		return nil, err
	}

	if cfg.DrawOrder, err = imagepkg.ParseDrawOrder(get("DRAW_ORDER", "frame-over")); err != nil {
		return nil, err
	}

	if cfg.SessionTTL, err = time.ParseDuration(get("SESSION_TTL", "30m")); err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}

	mb, err := atoi("MAX_UPLOAD_MB", get("MAX_UPLOAD_MB", "20"))
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(mb) << 20

	if cfg.MaxUploadPixels, err = atoi("MAX_UPLOAD_PIXELS", get("MAX_UPLOAD_PIXELS", strconv.Itoa(imagepkg.DefaultMaxPixels))); err != nil {
		return nil, err
	}
	if cfg.MaxUploadPixels <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_PIXELS must be positive, got %d", cfg.MaxUploadPixels)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoi(key, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func atof(key, s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
