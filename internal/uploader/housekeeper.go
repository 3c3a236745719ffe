package uploader

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/trackshift/platform/uplink/internal/resource"
)

// LocalHousekeeper cleans and reveals uploads in a storage root the client
// can reach on its own filesystem.
type LocalHousekeeper struct {
	Root   string
	Logger zerolog.Logger
}

// Clean removes the destination of (kind, name) along with its .meta sidecar
// and, for videos, the thumbnail.
func (h LocalHousekeeper) Clean(kind resource.Kind, name string) error {
	dest := kind.Destination(h.Root, name)
	if dest == "" {
		return fmt.Errorf("clean: unsupported kind %s", kind)
	}
	info, err := os.Stat(dest)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	stale := []string{dest + ".meta"}
	if info.IsDir() {
		err = os.RemoveAll(dest)
	} else {
		err = os.Remove(dest)
		if kind == resource.Video {
			thumb := resource.ThumbnailPath(dest)
			stale = append(stale, thumb, thumb+".meta")
		}
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", dest, err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	h.Logger.Info().Str("path", dest).Msg("removed previous upload")
	return nil
}

func (h LocalHousekeeper) Reveal(kind resource.Kind, name string) {
	h.Logger.Info().Str("path", kind.Destination(h.Root, name)).Msg("upload available")
}
