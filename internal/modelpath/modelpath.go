// Package modelpath resolves on-disk model files for the subsystems that
// need them (wake word, speech recognition). Resolution failures are fatal at
// startup; no subsystem runs without its model.
package modelpath

import (
	"fmt"
	"os"
	"path/filepath"
)

// Kind identifies which subsystem a model belongs to.
type Kind string

const (
	// KindWake is the wake-word spotter model.
	KindWake Kind = "wake"

	// KindSTT is the speech recognition model.
	KindSTT Kind = "stt"
)

// LoadError reports a model that could not be located or read. It names the
// subsystem so startup logs identify exactly what is missing.
type LoadError struct {
	// Subsystem is the Kind that failed to resolve.
	Subsystem Kind

	// Path is the path that was checked ("" when resolution never produced one).
	Path string

	// Err is the underlying cause.
	Err error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("modelpath: %s model: %v", e.Subsystem, e.Err)
	}
	return fmt.Sprintf("modelpath: %s model at %q: %v", e.Subsystem, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Resolver maps a model kind to a readable file path.
type Resolver interface {
	// Resolve returns the path of the model for kind, or a *LoadError.
	Resolve(kind Kind) (string, error)
}

// DirResolver resolves models against a base directory using per-kind file
// names, with optional absolute-path overrides.
type DirResolver struct {
	dir       string
	names     map[Kind]string
	overrides map[Kind]string
}

var _ Resolver = (*DirResolver)(nil)

// defaultNames are the expected file names under the models directory.
var defaultNames = map[Kind]string{
	KindWake: "wake.json",
	KindSTT:  "ggml-base.en.bin",
}

// NewDirResolver creates a resolver rooted at dir. overrides maps a kind to
// an explicit path that bypasses the directory convention; nil is allowed.
func NewDirResolver(dir string, overrides map[Kind]string) *DirResolver {
	return &DirResolver{
		dir:       dir,
		names:     defaultNames,
		overrides: overrides,
	}
}

// Resolve implements Resolver. The returned path is verified to exist and be
// a regular file.
func (r *DirResolver) Resolve(kind Kind) (string, error) {
	path, ok := r.overrides[kind]
	if !ok || path == "" {
		name, known := r.names[kind]
		if !known {
			return "", &LoadError{Subsystem: kind, Err: fmt.Errorf("unknown model kind")}
		}
		path = filepath.Join(r.dir, name)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", &LoadError{Subsystem: kind, Path: path, Err: err}
	}
	if info.IsDir() {
		return "", &LoadError{Subsystem: kind, Path: path, Err: fmt.Errorf("is a directory")}
	}
	return path, nil
}
