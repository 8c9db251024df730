// Package uploads keeps user-supplied images on local disk and serves them
// back under /uploads/.
package uploads

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

const URLPrefix = "/uploads/"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Store struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// MaxBytes is the per-file limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// SaveImage stores fh and returns the generated file name,
// "<unix-millis>-<sanitized original name>".
func (s *Store) SaveImage(fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.maxBytes {
		return "", domain.Errorf(domain.ErrValidation, "%s exceeds the %d MB limit", fh.Filename, s.maxBytes>>20)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = src.Close() }()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", domain.Errorf(domain.ErrValidation, "%s is not an image", fh.Filename)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}

	dst, name, err := s.create(sanitize(fh.Filename))
	if err != nil {
		return "", err
	}

	// Guard against a Size header that lies.
	n, err := io.Copy(dst, io.LimitReader(src, s.maxBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxBytes {
		err = domain.Errorf(domain.ErrValidation, "%s exceeds the %d MB limit", fh.Filename, s.maxBytes>>20)
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, name))
		return "", err
	}
	return name, nil
}

// maxNameAttempts bounds how many same-named files one millisecond can hold.
const maxNameAttempts = 100

// create opens a new file named "<unix-millis>-<base>". Later files with the
// same base in the same millisecond get "<unix-millis>-<n>-<base>".
func (s *Store) create(base string) (*os.File, string, error) {
	millis := s.now().UnixMilli()
	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		name := fmt.Sprintf("%d-%s", millis, base)
		if attempt > 1 {
			name = fmt.Sprintf("%d-%d-%s", millis, attempt, base)
		}
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !os.IsExist(err) {
			return nil, "", fmt.Errorf("create %s: %w", name, err)
		}
	}
	return nil, "", fmt.Errorf("create %s: no free name after %d attempts", base, maxNameAttempts)
}

// SaveImages stores every file or none.
func (s *Store) SaveImages(files []*multipart.FileHeader) ([]string, error) {
	names := make([]string, 0, len(files))
	for _, fh := range files {
		name, err := s.SaveImage(fh)
		if err != nil {
			s.Remove(names...)
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// Remove deletes stored files, ignoring ones that are already gone.
func (s *Store) Remove(names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		_ = os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	}
}

func (s *Store) Handler() http.Handler {
	return http.StripPrefix(URLPrefix, http.FileServer(http.Dir(s.dir)))
}

func sanitize(name string) string {
	name = unsafeChars.ReplaceAllString(filepath.Base(name), "-")
	name = strings.Trim(name, ".-")
	if name == "" {
		return "upload"
	}
	return name
}
