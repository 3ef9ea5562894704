package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"selfiebot/pkg/domain"
)

// FileStore saves media to disk under a base directory.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (f *FileStore) SaveOriginal(ctx context.Context, userID string, index int, ext string, data []byte) (string, error) {
	if err := validUserID(userID); err != nil {
		return "", err
	}
	key := OriginalKey(userID, index, ext)
	return key, f.write(key, data)
}

func (f *FileStore) SaveVariant(ctx context.Context, userID string, index int, mode domain.Mode, data []byte) (string, error) {
	if err := validUserID(userID); err != nil {
		return "", err
	}
	key := VariantKey(userID, index, mode)
	return key, f.write(key, data)
}

func (f *FileStore) write(key string, data []byte) error {
	target := f.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit file: %w", err)
	}
	return nil
}

func (f *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.fullPath(key))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (f *FileStore) List(ctx context.Context, userID string, offset, limit int) (Page, error) {
	if err := validUserID(userID); err != nil {
		return Page{}, err
	}
	entries, err := os.ReadDir(filepath.Join(f.basePath, userID))
	if errors.Is(err, fs.ErrNotExist) {
		return Page{}, nil
	}
	if err != nil {
		return Page{}, fmt.Errorf("list user dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	page := paginate(names, offset, limit)
	for i, name := range page.Files {
		page.Files[i] = path.Join(userID, name)
	}
	return page, nil
}

// DeleteUser removes all files for a user.
func (f *FileStore) DeleteUser(ctx context.Context, userID string) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(f.basePath, userID))
}

// Sweep walks user folders in parallel, deleting expired files and empty folders.
func (f *FileStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		return 0, fmt.Errorf("list storage root: %w", err)
	}
	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(f.basePath, e.Name())
		g.Go(func() error {
			n, err := sweepDir(gctx, dir, cutoff)
			removed.Add(int64(n))
			return err
		})
	}
	err = g.Wait()
	return int(removed.Load()), err
}

func sweepDir(ctx context.Context, dir string, cutoff time.Time) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}
	removed := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			p := filepath.Join(dir, file.Name())
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, fmt.Errorf("remove %s: %w", p, err)
			}
			slog.Info("cleanup: removed old file", "file", p)
			removed++
		}
	}
	rest, err := os.ReadDir(dir)
	if err == nil && len(rest) == 0 {
		_ = os.Remove(dir)
	}
	return removed, nil
}

func (f *FileStore) fullPath(key string) string {
	return filepath.Join(f.basePath, filepath.FromSlash(key))
}
