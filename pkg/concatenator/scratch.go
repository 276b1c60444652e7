package concatenator

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Scratch is the private working directory of one concatenation.
// Nothing in it outlives Release.
type Scratch struct {
	fs     afero.Fs
	parent afero.Fs
	dir    string
	onDisk bool
}

// NewMemScratch keeps everything in memory, good enough for the native engine.
func NewMemScratch() (*Scratch, error) {
	return newScratch(afero.NewMemMapFs(), "/", false)
}

// NewDiskScratch creates a unique directory under baseDir, external tools need real paths.
func NewDiskScratch(baseDir string) (*Scratch, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("disk scratch needs a base directory")
	}
	// ffmpeg resolves relative list entries against the list file
	absDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve scratch base %s %w", baseDir, err)
	}
	return newScratch(afero.NewOsFs(), absDir, true)
}

func newScratch(parent afero.Fs, baseDir string, onDisk bool) (*Scratch, error) {
	dir := filepath.Join(baseDir, "narrator-"+uuid.NewString())
	if err := parent.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create scratch dir %s %w", dir, err)
	}
	return &Scratch{
		fs:     afero.NewBasePathFs(parent, dir),
		parent: parent,
		dir:    dir,
		onDisk: onDisk,
	}, nil
}

func (s *Scratch) OnDisk() bool {
	return s.onDisk
}

func (s *Scratch) WriteFile(name string, data []byte) error {
	return afero.WriteFile(s.fs, name, data, 0o600)
}

func (s *Scratch) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(s.fs, name)
}

func (s *Scratch) Exists(name string) bool {
	ok, err := afero.Exists(s.fs, name)
	return err == nil && ok
}

// RealPath is the path an external process can open, only meaningful on disk.
func (s *Scratch) RealPath(name string) (string, error) {
	if !s.onDisk {
		return "", fmt.Errorf("scratch is in memory, %s has no real path", name)
	}
	return filepath.Join(s.dir, filepath.Clean("/"+name)), nil
}

func (s *Scratch) Release() error {
	return s.parent.RemoveAll(s.dir)
}
