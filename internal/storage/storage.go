// Package storage keeps attachment bytes for work submissions. Submissions
// only carry the returned references.
package storage

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrOutsideStore = errors.New("attachment is not held by this store")

// objectName builds "<prefix>/<category>/<uuid><ext>", keeping only the
// extension of the client's filename.
func objectName(prefix, category, filename string) (id, name string) {
	id = uuid.NewString()
	ext := strings.ToLower(filepath.Ext(filename))
	name = path.Join(cleanSegment(prefix), cleanSegment(category), id+ext)
	return id, name
}

func cleanSegment(s string) string {
	s = path.Clean("/" + strings.ReplaceAll(s, "\\", "/"))
	return strings.TrimPrefix(s, "/")
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}

// objectFromURL recovers the object name from a URL produced by joinURL.
func objectFromURL(base, url string) (string, error) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("%w: %s", ErrOutsideStore, url)
	}
	name := strings.TrimPrefix(url, prefix)
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	if name == "" || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %s", ErrOutsideStore, url)
	}
	return name, nil
}

func stamp(now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}
