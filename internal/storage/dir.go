package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/heimdex/heimdex-notes/internal/services"
)

// DirStore keeps each container as a directory under a root.
type DirStore struct {
	root     string
	progress io.Writer
}

func NewDirStore(root string, progress io.Writer) (*DirStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &DirStore{root: abs, progress: progress}, nil
}

// Root returns the absolute storage directory.
func (s *DirStore) Root() string { return s.root }

func (s *DirStore) path(container, name string) (string, error) {
	if container == "" || strings.ContainsAny(container, `/\`) || container == "." || container == ".." {
		return "", services.Validation("storage", fmt.Sprintf("invalid container %q", container))
	}
	clean := filepath.Clean(filepath.FromSlash("/" + name))
	if name != "" && clean == string(filepath.Separator) {
		return "", services.Validation("storage", fmt.Sprintf("invalid blob name %q", name))
	}
	return filepath.Join(s.root, container, clean), nil
}

func (s *DirStore) EnsureContainer(_ context.Context, container string) error {
	dir, err := s.path(container, "")
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *DirStore) Put(ctx context.Context, container, name string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(container, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return os.Rename(tmp, p)
}

func (s *DirStore) PutFile(ctx context.Context, container, name, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return err
	}
	p, err := s.path(container, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	dst, err := os.Create(p + ".tmp")
	if err != nil {
		return fmt.Errorf("create blob: %w", err)
	}

	var w io.Writer = dst
	if bar := newProgressBar(s.progress, info.Size(), "copy "+name); bar != nil {
		w = io.MultiWriter(dst, bar)
		defer bar.Finish()
	}
	if _, err := io.Copy(w, &ctxReader{ctx: ctx, r: src}); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return fmt.Errorf("copy blob: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	return os.Rename(dst.Name(), p)
}

func (s *DirStore) Get(_ context.Context, container, name string) ([]byte, error) {
	p, err := s.path(container, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "storage", "download", container+"/"+name, err)
		}
		return nil, err
	}
	return data, nil
}

func (s *DirStore) List(_ context.Context, container, prefix string) ([]string, error) {
	dir, err := s.path(container, "")
	if err != nil {
		return nil, err
	}
	var names []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", container, err)
	}
	sort.Strings(names)
	return names, nil
}

// ReadURL returns a file:// URL; only local consumers can read it.
func (s *DirStore) ReadURL(_ context.Context, container, name string, _ time.Duration) (string, error) {
	p, err := s.path(container, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		return "", services.Wrap(services.ErrNotFound, "storage", "read url", container+"/"+name, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String(), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
