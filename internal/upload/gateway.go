package upload

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"regexp"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/songbook/internal/errs"
	"github.com/and161185/songbook/internal/metrics"
)

// ThumbWidth is the width of generated cover thumbnails.
const ThumbWidth = 300

var identifierRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,127}$`)

var extensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"application/pdf": "pdf",
}

// Store puts a single object into remote storage.
type Store interface {
	Put(ctx context.Context, object, contentType string, data []byte) error
}

// Result names the objects written by one upload.
type Result struct {
	Object    string `json:"object"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Size      int64  `json:"size"`
}

// Gateway validates files and forwards them to a Store. It never retries.
type Gateway struct {
	store Store
	log   *zap.Logger
}

// NewGateway constructs a Gateway.
func NewGateway(store Store, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{store: store, log: log}
}

// ObjectName returns "<prefix>/<identifier>.<ext>" for a declared content type.
func ObjectName(cfg Config, identifier, contentType string) (string, error) {
	if !identifierRe.MatchString(identifier) {
		return "", fmt.Errorf("bad identifier %q: %w", identifier, errs.ErrValidation)
	}
	ext, ok := extensions[normalizeType(contentType)]
	if !ok {
		return "", fmt.Errorf("no extension for %q: %w", contentType, errs.ErrValidation)
	}
	return cfg.Prefix + "/" + identifier + "." + ext, nil
}

func thumbName(cfg Config, identifier string) string {
	return cfg.Prefix + "/" + identifier + "_thumb.jpg"
}

// Upload validates data and stores it under a name derived from identifier.
// Validation failures wrap errs.ErrValidation; storage failures are returned as is.
func (g *Gateway) Upload(ctx context.Context, data []byte, identifier, contentType string, cfg Config) (Result, error) {
	v := ValidateFile(FileInfo{ContentType: contentType, Size: int64(len(data))}, cfg)
	if !v.Valid {
		return Result{}, fmt.Errorf("%s: %w", v.Reason, errs.ErrValidation)
	}
	object, err := ObjectName(cfg, identifier, contentType)
	if err != nil {
		return Result{}, err
	}
	res := Result{Object: object, Size: int64(len(data))}

	var thumb []byte
	if cfg.Thumbnail {
		thumb, err = Thumbnail(data, ThumbWidth)
		if err != nil {
			return Result{}, fmt.Errorf("decode image: %v: %w", err, errs.ErrValidation)
		}
		res.Thumbnail = thumbName(cfg, identifier)
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.store.Put(egctx, object, normalizeType(contentType), data)
	})
	if thumb != nil {
		eg.Go(func() error {
			return g.store.Put(egctx, res.Thumbnail, "image/jpeg", thumb)
		})
	}
	if err := eg.Wait(); err != nil {
		g.log.Error("upload failed", zap.String("object", object), zap.Error(err))
		return Result{}, err
	}

	metrics.UploadedBytes.WithLabelValues(cfg.Kind).Add(float64(len(data) + len(thumb)))
	g.log.Info("uploaded", zap.String("object", object), zap.Int("bytes", len(data)))
	return res, nil
}

// Thumbnail decodes a JPEG and scales it to width, keeping the aspect ratio.
// Images already narrower than width are re-encoded unchanged in size.
func Thumbnail(data []byte, width int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > width {
		h = max(1, h*width/w)
		w = width
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
