package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder for DecodeConfig
	_ "image/jpeg" // register decoder for DecodeConfig
	_ "image/png"  // register decoder for DecodeConfig
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"gallery-index/internal/apperr"
	"gallery-index/internal/filename"
	"gallery-index/internal/filesystem"
)

// Local is a Store over a directory tree. Each direct subdirectory of the
// root is a collection.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve gallery directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("gallery directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("gallery directory %s is not a directory", abs)
	}
	return &Local{root: abs}, nil
}

// LocalID encodes a slash-separated path relative to the root as an item ID.
func LocalID(rel string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rel))
}

// resolve decodes an ID back to an absolute path inside the root.
func (l *Local) resolve(kind, id string) (string, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", "", apperr.NotFound(kind, id)
	}
	rel := string(raw)
	if rel == "" || !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", "", apperr.NotFound(kind, id)
	}
	return filepath.Join(l.root, filepath.FromSlash(rel)), rel, nil
}

// ListCollections lists the root's subdirectories by name.
func (l *Local) ListCollections(ctx context.Context) (collections []Collection, err error) {
	start := time.Now()
	defer func() { recordRequest(opListCollections, start, err) }()

	entries, err := filesystem.ReadDir(ctx, l.root)
	if err != nil {
		return nil, unavailable(opListCollections, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		children, err := filesystem.ReadDir(ctx, filepath.Join(l.root, e.Name()))
		if err != nil {
			continue
		}
		collections = append(collections, Collection{
			ID:           LocalID(e.Name()),
			Name:         e.Name(),
			ChildCount:   len(children),
			LastModified: info.ModTime().UTC(),
		})
	}
	return collections, nil
}

// ListItems lists a collection's entries.
func (l *Local) ListItems(ctx context.Context, collectionID string) (items []Item, err error) {
	start := time.Now()
	defer func() { recordRequest(opListItems, start, err) }()

	items, err = l.listItems(ctx, collectionID)
	return items, err
}

func (l *Local) listItems(ctx context.Context, collectionID string) ([]Item, error) {
	dir, rel, err := l.resolve("gallery", collectionID)
	if err != nil {
		return nil, err
	}

	entries, err := filesystem.ReadDir(ctx, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound("gallery", collectionID)
		}
		return nil, unavailable(opListItems, err)
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := l.stat(ctx, path.Join(rel, e.Name()))
		if err != nil {
			continue
		}
		items = append(items, *item)
	}
	return items, nil
}

// FirstItem returns the first regular file of a collection by name.
func (l *Local) FirstItem(ctx context.Context, collectionID string) (item *Item, err error) {
	start := time.Now()
	defer func() { recordRequest(opFirstItem, start, err) }()

	items, err := l.listItems(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	for i := range items {
		if !items[i].IsFolder {
			return &items[i], nil
		}
	}
	return nil, nil
}

// GetItem stats a single file.
func (l *Local) GetItem(ctx context.Context, id string) (item *Item, err error) {
	start := time.Now()
	defer func() { recordRequest(opGetItem, start, err) }()

	_, rel, err := l.resolve("item", id)
	if err != nil {
		return nil, err
	}
	item, err = l.stat(ctx, rel)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("item", id)
	}
	if err != nil {
		return nil, unavailable(opGetItem, err)
	}
	return item, nil
}

// GetBytes reads a file.
func (l *Local) GetBytes(ctx context.Context, id string) (data []byte, err error) {
	start := time.Now()
	defer func() { recordRequest(opGetBytes, start, err) }()

	p, _, err := l.resolve("image", id)
	if err != nil {
		return nil, err
	}
	info, err := filesystem.Stat(ctx, p)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil, apperr.NotFound("image", id)
	}
	if err != nil {
		return nil, unavailable(opGetBytes, err)
	}
	if info.Size() > maxContentBytes {
		return nil, unavailable(opGetBytes, fmt.Errorf("%s exceeds %d bytes", info.Name(), maxContentBytes))
	}
	data, err = filesystem.ReadFile(ctx, p)
	if err != nil {
		return nil, unavailable(opGetBytes, err)
	}
	return data, nil
}

func (l *Local) stat(ctx context.Context, rel string) (*Item, error) {
	p := filepath.Join(l.root, filepath.FromSlash(rel))
	info, err := filesystem.Stat(ctx, p)
	if err != nil {
		return nil, err
	}

	item := &Item{
		ID:           LocalID(rel),
		Name:         info.Name(),
		LastModified: info.ModTime().UTC(),
		IsFolder:     info.IsDir(),
	}
	if item.IsFolder {
		return item, nil
	}
	item.Size = info.Size()
	if filename.IsImage(item.Name) {
		item.Width, item.Height = dimensions(ctx, p)
	}
	return item, nil
}

// dimensions reads the image header only. Formats without a registered
// decoder report unknown dimensions.
func dimensions(ctx context.Context, p string) (width, height *int) {
	f, err := filesystem.Open(ctx, p)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, nil
	}
	return &cfg.Width, &cfg.Height
}

var _ Store = (*Local)(nil)
