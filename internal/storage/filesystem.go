package storage

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FilesystemStore implements ObjectStore on a local directory. Signed URLs
// are HMAC-scoped download links served by ObjectsHandler, so the service is
// complete without a cloud provider.
type FilesystemStore struct {
	baseDir string
	baseURL string
	secret  []byte
}

func NewFilesystemStore(baseDir, baseURL, signingSecret string) (*FilesystemStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	secret := []byte(signingSecret)
	if len(secret) == 0 {
		// Ephemeral secret: URLs stop verifying across restarts, which is
		// acceptable for the default dev setup.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
	}
	return &FilesystemStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
	}, nil
}

func (s *FilesystemStore) path(key string) (string, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.baseDir)) {
		return "", fmt.Errorf("invalid key %q: path traversal", key)
	}
	return path, nil
}

func (s *FilesystemStore) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

func (s *FilesystemStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return file, nil
}

func (s *FilesystemStore) Put(_ context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (s *FilesystemStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	expires := time.Now().Add(ttl).Unix()
	signature := s.sign(key, expires)
	return fmt.Sprintf("%s/objects/%s?expires=%d&sig=%s", s.baseURL, key, expires, signature), nil
}

func (s *FilesystemStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// ObjectsHandler serves signed download links under /objects/. Expired or
// tampered links are rejected before any filesystem access.
func (s *FilesystemStore) ObjectsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/objects/")
		if key == "" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}

		expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
		if err != nil || time.Now().Unix() > expires {
			http.Error(w, "link expired", http.StatusForbidden)
			return
		}
		signature := r.URL.Query().Get("sig")
		if !hmac.Equal([]byte(signature), []byte(s.sign(key, expires))) {
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}

		file, err := s.Get(r.Context(), key)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer file.Close()

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "private, max-age=60")
		_, _ = io.Copy(w, file)
	})
}
