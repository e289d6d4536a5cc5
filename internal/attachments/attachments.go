// Package attachments is the local, content-addressed blob store backing
// the Attachment entity (spec §3, §6.3): a single directory keyed by
// stored_name, written atomically via a temp-file-then-rename, served with
// a path-traversal guard.
//
// Adapted from the teacher's internal/infra/attachments store — the
// Cloudflare/minio remote-object-storage branch of that file is dropped
// here; this system's Non-goals exclude multi-host/object-storage concerns
// and the spec's Attachment model names exactly one local directory (see
// DESIGN.md).
package attachments

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var storedNamePattern = regexp.MustCompile(`^[a-f0-9]{64}(\.[a-z0-9]{1,10})?$`)

// Store persists attachment payloads under a single local directory.
type Store struct {
	dir string
}

// New constructs a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("attachment store dir is required")
	}
	clean := filepath.Clean(dir)
	if err := os.MkdirAll(clean, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &Store{dir: clean}, nil
}

// Dir returns the root storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Store persists data under a content-addressed stored_name and returns it.
// Storing the same bytes twice with the same resolved extension (taken from
// originalFilename, else mimeType) returns the same stored_name without
// rewriting the file; the same bytes under a different extension get a
// different stored_name.
func (s *Store) Store(originalFilename, mimeType string, data []byte) (storedName string, err error) {
	if len(data) == 0 {
		return "", fmt.Errorf("attachment payload is empty")
	}
	storedName = buildStoredName(originalFilename, mimeType, data)
	target := filepath.Join(s.dir, storedName)

	if _, err := os.Stat(target); err == nil {
		return storedName, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat attachment: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, storedName+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp attachment: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("finalize attachment: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(target); statErr == nil {
			return storedName, nil
		}
		return "", fmt.Errorf("persist attachment: %w", err)
	}
	return storedName, nil
}

// Path returns the on-disk path for storedName, or an error if storedName
// doesn't look like one of ours or would escape the store directory.
func (s *Store) Path(storedName string) (string, error) {
	clean := path.Clean(storedName)
	clean = strings.TrimPrefix(clean, "/")
	if !storedNamePattern.MatchString(strings.ToLower(path.Base(clean))) {
		return "", fmt.Errorf("invalid stored name %q", storedName)
	}
	full := filepath.Join(s.dir, filepath.FromSlash(clean))
	rel, err := filepath.Rel(s.dir, full)
	if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
		return "", fmt.Errorf("stored name %q escapes attachment dir", storedName)
	}
	return full, nil
}

// Delete removes the file backing storedName. A missing file is not an
// error (the caller may be reconciling after a partial failure).
func (s *Store) Delete(storedName string) error {
	full, err := s.Path(storedName)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove attachment: %w", err)
	}
	return nil
}

// Handler serves attachment downloads under pathPrefix, guarding against
// path traversal.
func (s *Store) Handler(pathPrefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, pathPrefix)
		full, err := s.Path(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, full)
	})
}

func buildStoredName(originalFilename, mimeType string, data []byte) string {
	hash := sha256.Sum256(data)
	id := hex.EncodeToString(hash[:])

	ext := sanitizeExt(filepath.Ext(strings.TrimSpace(originalFilename)))
	if ext == "" {
		ext = extFromMediaType(mimeType)
	}
	return id + ext
}

func sanitizeExt(ext string) string {
	trimmed := strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(trimmed, ".") {
		return ""
	}
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" || len(trimmed) > 10 {
		return ""
	}
	for _, r := range trimmed {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + trimmed
}

func extFromMediaType(mediaType string) string {
	mt := strings.TrimSpace(mediaType)
	if mt == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(mt)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return sanitizeExt(exts[0])
}
