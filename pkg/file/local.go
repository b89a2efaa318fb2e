package file

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps files under baseDir. It backs development setups
// without object storage.
type LocalStorage struct {
	baseDir string
	baseURL string
}

func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, ErrInvalidConfig
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, errors.Join(ErrFailedToResolvePath, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Join(ErrFailedToCreateDir, err)
	}
	return &LocalStorage{baseDir: abs, baseURL: strings.TrimSuffix(baseURL, "/") + "/"}, nil
}

// Dir is the absolute directory files are written to.
func (s *LocalStorage) Dir() string { return s.baseDir }

func (s *LocalStorage) Save(ctx context.Context, fh *multipart.FileHeader, path string) (*File, error) {
	if fh == nil {
		return nil, ErrNilFileHeader
	}
	key, err := cleanKey(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, errors.Join(ErrFailedToCreateDir, err)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, errors.Join(ErrFailedToOpenFile, err)
	}
	defer func() { _ = src.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Join(ErrFailedToCreateFile, err)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return nil, errors.Join(ErrFailedToCreateFile, err)
	}

	mimeType, _ := GetMIMEType(fh)
	return &File{Filename: fh.Filename, Size: n, MIMEType: mimeType, RelativePath: key, URL: s.URL(key)}, nil
}

func (s *LocalStorage) Delete(_ context.Context, path string) error {
	key, err := cleanKey(path)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(key))); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return errors.Join(ErrFailedToDeleteFile, err)
	}
	return nil
}

func (s *LocalStorage) URL(path string) string {
	return s.baseURL + strings.TrimPrefix(path, "/")
}
