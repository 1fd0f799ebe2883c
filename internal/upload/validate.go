// Package upload validates user files and forwards them to object storage.
package upload

import (
	"fmt"
	"slices"
	"strings"
)

// MaxSize is the ceiling shared by the presets.
const MaxSize int64 = 100 * 1024 * 1024

// Config describes what a kind of upload accepts and where it is stored.
type Config struct {
	Kind         string
	AllowedTypes []string
	MaxSize      int64
	Prefix       string
	// Thumbnail also stores a downscaled JPEG next to the original.
	Thumbnail bool
}

var (
	Cover = Config{
		Kind:         "cover",
		AllowedTypes: []string{"image/jpeg"},
		MaxSize:      MaxSize,
		Prefix:       "covers",
		Thumbnail:    true,
	}
	Score = Config{
		Kind:         "score",
		AllowedTypes: []string{"image/jpeg", "image/png", "application/pdf"},
		MaxSize:      MaxSize,
		Prefix:       "scores",
	}
)

// FileInfo is what the client declared about a file.
type FileInfo struct {
	Name        string
	ContentType string
	Size        int64
}

// Validation is the outcome of ValidateFile. Reason is set when Valid is false.
type Validation struct {
	Valid  bool
	Reason string
}

// ValidateFile checks the declared content type against the allow-list and
// the size against the ceiling. Expected rejections are not errors.
func ValidateFile(f FileInfo, cfg Config) Validation {
	ct := normalizeType(f.ContentType)
	if !slices.Contains(cfg.AllowedTypes, ct) {
		return Validation{Reason: fmt.Sprintf("unsupported file type %q, allowed: %s", f.ContentType, strings.Join(cfg.AllowedTypes, ", "))}
	}
	if f.Size <= 0 {
		return Validation{Reason: "empty file"}
	}
	if f.Size > cfg.MaxSize {
		return Validation{Reason: fmt.Sprintf("file too large: %d bytes, limit %d", f.Size, cfg.MaxSize)}
	}
	return Validation{Valid: true}
}

// normalizeType drops parameters such as "; charset=binary" and lowercases.
func normalizeType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
