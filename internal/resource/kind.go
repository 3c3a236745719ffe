package resource

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind classifies an upload and decides where it is stored on the host.
type Kind int

const (
	None Kind = iota
	Scene
	Video
)

const (
	sceneFolder = "StandaloneWindows64"
	videoFolder = "Videos"
)

type variant struct {
	name string
	// ext is the marker extension a client picks to start an upload of this kind.
	ext string
	// subfolder is where the uploaded files land, relative to the storage root.
	subfolder func(target string) string
	// displayName derives the target name from the path the client picked.
	displayName func(path string) string
}

var variants = map[Kind]variant{
	Scene: {
		name:        "Scene",
		ext:         ".json",
		subfolder:   func(target string) string { return filepath.Join(sceneFolder, target) },
		displayName: func(path string) string { return filepath.Base(filepath.Dir(path)) },
	},
	Video: {
		name:        "Video",
		ext:         ".mp4",
		subfolder:   func(string) string { return videoFolder },
		displayName: filepath.Base,
	},
}

func (k Kind) String() string {
	if v, ok := variants[k]; ok {
		return v.name
	}
	if k == None {
		return "None"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k can be provisioned.
func (k Kind) Valid() bool {
	_, ok := variants[k]
	return ok
}

// Extension returns the marker extension for k, or "" for None.
func (k Kind) Extension() string {
	return variants[k].ext
}

// Subfolder returns the directory, relative to the storage root, that receives
// the files of an upload named target.
func (k Kind) Subfolder(target string) string {
	v, ok := variants[k]
	if !ok {
		return ""
	}
	return v.subfolder(target)
}

// Destination returns the host path that represents the finished upload: the
// scene directory or the video file.
func (k Kind) Destination(root, target string) string {
	switch k {
	case Scene:
		return filepath.Join(root, k.Subfolder(target))
	case Video:
		return filepath.Join(root, k.Subfolder(target), target)
	default:
		return ""
	}
}

// Classify maps a client-side path to its kind by extension. Unknown
// extensions return None.
func Classify(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	for kind, v := range variants {
		if v.ext == ext {
			return kind
		}
	}
	return None
}

// DisplayName returns the target name the host knows the upload by: the
// scene's directory name or the video's file name.
func DisplayName(kind Kind, path string) string {
	v, ok := variants[kind]
	if !ok {
		return ""
	}
	return v.displayName(path)
}

// ThumbnailPath returns the sidecar thumbnail path of a video file.
func ThumbnailPath(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".png"
}
