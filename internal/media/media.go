// Package media supplies the image or animation attached to alerts, from a
// local directory or an object-storage prefix.
package media

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

var contentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".webp": "image/webp",
}

// Supported reports whether name has a supported media extension.
func Supported(name string) bool {
	_, ok := contentTypes[strings.ToLower(path.Ext(name))]
	return ok
}

func contentType(name string) string {
	return contentTypes[strings.ToLower(path.Ext(name))]
}

// DirSource picks a random file from a directory, falling back to a
// default image when the directory holds none.
type DirSource struct {
	dir          string
	defaultImage string
}

// NewDirSource creates a DirSource.
func NewDirSource(dir, defaultImage string) *DirSource {
	return &DirSource{dir: dir, defaultImage: defaultImage}
}

// Collection lists the supported files in the directory, sorted.
func (s *DirSource) Collection() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("media: read dir %s: %w", s.dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && Supported(e.Name()) {
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Pick implements domain.MediaSource.
func (s *DirSource) Pick(ctx context.Context) (domain.Media, error) {
	files, err := s.Collection()
	if err != nil {
		return domain.Media{}, err
	}
	var chosen string
	switch {
	case len(files) > 0:
		chosen = files[rand.IntN(len(files))]
	case s.defaultImage != "":
		if _, err := os.Stat(s.defaultImage); err != nil {
			return domain.Media{}, domain.ErrNoMedia
		}
		chosen = s.defaultImage
	default:
		return domain.Media{}, domain.ErrNoMedia
	}

	data, err := os.ReadFile(chosen)
	if err != nil {
		return domain.Media{}, fmt.Errorf("media: read %s: %w", chosen, err)
	}
	name := filepath.Base(chosen)
	return domain.Media{Name: name, ContentType: contentType(name), Data: data}, nil
}

// BlobSource picks a random object under a prefix of object storage.
type BlobSource struct {
	blobs  domain.BlobReader
	prefix string
}

// NewBlobSource creates a BlobSource.
func NewBlobSource(blobs domain.BlobReader, prefix string) *BlobSource {
	return &BlobSource{blobs: blobs, prefix: prefix}
}

// Pick implements domain.MediaSource.
func (s *BlobSource) Pick(ctx context.Context) (domain.Media, error) {
	infos, err := s.blobs.List(ctx, s.prefix)
	if err != nil {
		return domain.Media{}, fmt.Errorf("media: list %s: %w", s.prefix, err)
	}
	var keys []string
	for _, info := range infos {
		if Supported(info.Path) {
			keys = append(keys, info.Path)
		}
	}
	if len(keys) == 0 {
		return domain.Media{}, domain.ErrNoMedia
	}

	key := keys[rand.IntN(len(keys))]
	rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return domain.Media{}, fmt.Errorf("media: get %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.Media{}, fmt.Errorf("media: read %s: %w", key, err)
	}
	name := path.Base(key)
	return domain.Media{Name: name, ContentType: contentType(name), Data: data}, nil
}

var (
	_ domain.MediaSource = (*DirSource)(nil)
	_ domain.MediaSource = (*BlobSource)(nil)
)
