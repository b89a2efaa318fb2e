// Package file stores uploaded files on S3-compatible object storage or the
// local filesystem and inspects multipart uploads by content.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidConfig       = errors.New("invalid storage configuration")
	ErrFailedToLoadConfig  = errors.New("failed to load AWS config")
	ErrNilFileHeader       = errors.New("file header is nil")
	ErrFailedToOpenFile    = errors.New("failed to open file")
	ErrFailedToReadFile    = errors.New("failed to read file")
	ErrFailedToCreateFile  = errors.New("failed to create file")
	ErrFileTooLarge        = errors.New("file too large")
	ErrInvalidFileType     = errors.New("invalid file type")
	ErrInvalidPath         = errors.New("invalid file path")
	ErrFileNotFound        = errors.New("file not found")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrOperationTimeout    = errors.New("storage operation timed out")
	ErrServiceUnavailable  = errors.New("storage service unavailable")
	ErrOperationCanceled   = errors.New("storage operation canceled")
	ErrFailedToCreateDir   = errors.New("failed to create directory")
	ErrFailedToDeleteFile  = errors.New("failed to delete file")
	ErrFailedToResolvePath = errors.New("failed to resolve path")
)

// File describes a stored object.
type File struct {
	Filename     string
	Size         int64
	MIMEType     string
	RelativePath string
	URL          string
}

// Storage is implemented by S3Storage and LocalStorage.
type Storage interface {
	Save(ctx context.Context, fh *multipart.FileHeader, path string) (*File, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// IsImage detects the type from content, not from the file name.
func IsImage(fh *multipart.FileHeader) bool {
	mt, err := GetMIMEType(fh)
	if err != nil {
		return false
	}
	_, ok := imageExtensions[mt]
	return ok
}

// ImageExtension returns the canonical extension for a detected image type,
// falling back to the uploaded name's extension.
func ImageExtension(fh *multipart.FileHeader) string {
	if mt, err := GetMIMEType(fh); err == nil {
		if ext, ok := imageExtensions[mt]; ok {
			return ext
		}
	}
	return strings.ToLower(filepath.Ext(fh.Filename))
}

// GetMIMEType sniffs the first 512 bytes of the upload.
func GetMIMEType(fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", ErrNilFileHeader
	}
	f, err := fh.Open()
	if err != nil {
		return "", errors.Join(ErrFailedToOpenFile, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", errors.Join(ErrFailedToReadFile, err)
	}
	return http.DetectContentType(buf[:n]), nil
}

func ValidateSize(fh *multipart.FileHeader, maxBytes int64) error {
	if fh == nil {
		return ErrNilFileHeader
	}
	if fh.Size > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, fh.Size, maxBytes)
	}
	return nil
}

func cleanKey(path string) (string, error) {
	path = strings.TrimPrefix(filepath.ToSlash(path), "/")
	if path == "" || strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return path, nil
}
