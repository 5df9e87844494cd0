// Package share publishes export artifacts and hands back a URL to them.
package share

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/youruser/dpframe/internal/export"
	"github.com/youruser/dpframe/internal/util"
)

// Sharer stores an artifact somewhere reachable and returns its URL.
type Sharer interface {
	Share(ctx context.Context, art *export.Artifact) (string, error)
}

type Config struct {
	Backend string // none, filesystem, s3
	Dir     string
	BaseURL string
	Bucket  string
}

// New picks a backend. It returns a nil Sharer for "none"; callers then
// serve the artifact inline instead.
func New(ctx context.Context, cfg Config) (Sharer, error) {
	fields := logrus.Fields{"backend": cfg.Backend}
	var (
		s   Sharer
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		fields["backend"] = "inline"
	case "filesystem":
		fields["dir"] = cfg.Dir
		s, err = NewFilesystem(cfg.Dir, cfg.BaseURL)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME must be set for the s3 share backend")
		}
		fields["bucket"] = cfg.Bucket
		s, err = NewS3(ctx, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown share backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	logrus.WithFields(fields).Info("use share backend")
	return s, nil
}

// objectName makes a unique, sortable name that keeps the resolution suffix.
func objectName(art *export.Artifact) string {
	return ulid.Make().String() + "-" + art.Filename
}

// Filesystem writes artifacts into a directory served under BaseURL.
type Filesystem struct {
	dir     string
	baseURL string
}

func NewFilesystem(dir, baseURL string) (*Filesystem, error) {
	if dir == "" {
		return nil, fmt.Errorf("share dir is empty")
	}
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create share dir: %w", err)
	}
	return &Filesystem{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (f *Filesystem) Dir() string { return f.dir }

func (f *Filesystem) Share(ctx context.Context, art *export.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := objectName(art)
	path := filepath.Join(f.dir, name)
	if err := util.WriteFile(path, art.Data); err != nil {
		return "", fmt.Errorf("write shared artifact: %w", err)
	}
	logrus.WithFields(logrus.Fields{"file_path": path, "size": art.Size}).Info("artifact shared")
	return f.baseURL + "/" + name, nil
}
