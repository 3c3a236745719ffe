package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/trackshift/platform/uplink/internal/resource"
)

// ErrUnsupportedFileType rejects paths that are neither a scene marker nor a video.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// Manifest maps slash-separated destination names to local source paths.
type Manifest map[string]string

// Names returns the destination names in lexical order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size sums the sizes of all source files.
func (m Manifest) Size() (int64, error) {
	var total int64
	for _, src := range m {
		info, err := os.Stat(src)
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

type builder func(targetPath string) (Manifest, error)

var builders = map[resource.Kind]builder{
	resource.Scene: buildScene,
	resource.Video: buildVideo,
}

// Build lists the files to send for targetPath. targetPath must carry the
// marker extension of kind.
func Build(targetPath string, kind resource.Kind) (Manifest, error) {
	build, ok := builders[kind]
	if !ok || resource.Classify(targetPath) != kind {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Base(targetPath))
	}
	return build(targetPath)
}

// buildScene lists every file in the directory holding the scene marker.
func buildScene(targetPath string) (Manifest, error) {
	dir := filepath.Dir(targetPath)
	m := make(Manifest)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		m[filepath.ToSlash(rel)] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return m, nil
}

// buildVideo lists the video and, when present, its same-named .png thumbnail.
func buildVideo(targetPath string) (Manifest, error) {
	info, err := os.Stat(targetPath)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", targetPath)
	}
	m := Manifest{filepath.Base(targetPath): targetPath}
	thumb := resource.ThumbnailPath(targetPath)
	if info, err := os.Stat(thumb); err == nil && info.Mode().IsRegular() {
		m[filepath.Base(thumb)] = thumb
	}
	return m, nil
}
