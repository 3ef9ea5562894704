package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"selfiebot/pkg/domain"
)

// ErrInvalidKey is returned for keys that escape a user's folder.
var ErrInvalidKey = errors.New("invalid media key")

// Page is one slice of a user's gallery.
type Page struct {
	Files []string
	Total int
}

// MediaStore persists originals and generated variants under per-user folders.
// Keys are relative: "<userID>/0001.jpg", "<userID>/0001_2.png".
type MediaStore interface {
	SaveOriginal(ctx context.Context, userID string, index int, ext string, data []byte) (string, error)
	SaveVariant(ctx context.Context, userID string, index int, mode domain.Mode, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	// List returns keys sorted by filename descending, sliced to [offset, offset+limit).
	List(ctx context.Context, userID string, offset, limit int) (Page, error)
	DeleteUser(ctx context.Context, userID string) error
	// Sweep removes files last modified before cutoff and returns how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// OriginalKey builds the key of an uploaded original.
func OriginalKey(userID string, index int, ext string) string {
	return path.Join(userID, fmt.Sprintf("%04d.%s", index, NormalizeExt(ext)))
}

// VariantKey builds the key of a generated variant.
func VariantKey(userID string, index int, mode domain.Mode) string {
	return path.Join(userID, fmt.Sprintf("%04d_%d.png", index, int(mode)))
}

// NormalizeExt lowercases an extension and strips the dot. Empty input yields "jpg".
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return "jpg"
	}
	return ext
}

// ExtensionForMIME maps an image MIME type to a file extension.
func ExtensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}

// ContentType guesses the MIME type from a key's extension.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func validUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || userID == "." || userID == ".." || strings.ContainsAny(userID, `/\`) {
		return fmt.Errorf("%w: user %q", ErrInvalidKey, userID)
	}
	return nil
}

func validKey(key string) error {
	clean := path.Clean(key)
	if clean != key || strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	dir, file := path.Split(clean)
	if file == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return validUserID(strings.TrimSuffix(dir, "/"))
}

func paginate(names []string, offset, limit int) Page {
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	total := len(names)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return Page{Files: append([]string(nil), names[offset:end]...), Total: total}
}

// Config selects and configures a media backend.
type Config struct {
	Backend        string // file (default) or minio
	Dir            string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// Open builds the configured MediaStore.
func Open(cfg Config) (MediaStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "file", "fs":
		fs, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "minio", "s3":
		ms, err := NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		return ms, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
