package contentstore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	appErr "github.com/xxxsen/pagenote/internal/pkg/errors"
	"github.com/xxxsen/pagenote/internal/pkg/jwt"
)

// BlobRoute is where the server mounts the local store's blob endpoint.
const BlobRoute = "/api/v1/blobs/"

type localConfig struct {
	Dir     string `json:"dir"`
	BaseURL string `json:"base_url"`
	Secret  string `json:"secret"`
}

type localStore struct {
	dir     string
	baseURL string
	secret  []byte
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	if config.Secret == "" {
		return nil, fmt.Errorf("local store secret is required")
	}
	return &localStore{
		dir:     config.Dir,
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		secret:  []byte(config.Secret),
	}, nil
}

func (s *localStore) Type() string {
	return "local"
}

func (s *localStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	_ = contentType
	return s.sign(key, "PUT", ttl)
}

func (s *localStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.sign(key, "GET", ttl)
}

func (s *localStore) sign(key, method string, ttl time.Duration) (string, error) {
	if !validKey(key) {
		return "", appErr.ErrInvalid
	}
	token, err := jwt.GenerateBlobToken(key, method, s.secret, time.Now().Add(ttl))
	if err != nil {
		return "", err
	}
	return s.PublicURL(key) + "?token=" + url.QueryEscape(token), nil
}

func (s *localStore) PublicURL(key string) string {
	return s.baseURL + BlobRoute + strings.TrimPrefix(key, "/")
}

func (s *localStore) Authorize(token, method, key string) error {
	if token == "" {
		return appErr.ErrUnauthorized
	}
	claims, err := jwt.ParseBlobToken(token, s.secret)
	if err != nil {
		return appErr.ErrUnauthorized
	}
	if claims.Method != method || claims.Key != key {
		return appErr.ErrForbidden
	}
	return nil
}

func (s *localStore) Put(ctx context.Context, key string, r io.ReadSeeker, size int64, contentType string) error {
	_ = ctx
	_ = size
	_ = contentType
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *localStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *localStore) List(ctx context.Context, prefix string) ([]Object, error) {
	root := filepath.Join(s.dir, filepath.FromSlash(prefix))
	dir := root
	if !strings.HasSuffix(prefix, "/") {
		dir = filepath.Dir(root)
	}
	out := make([]Object, 0)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *localStore) path(key string) (string, error) {
	if !validKey(key) {
		return "", appErr.ErrInvalid
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}
