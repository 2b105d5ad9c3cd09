package ota

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Partition stores a downloaded image until it is applied.
type Partition interface {
	// Begin truncates the staging area and returns a writer for the raw
	// payload.
	Begin() (io.WriteSeeker, error)
	// Staged returns the raw payload written since Begin.
	Staged() (io.ReadCloser, error)
	// Install writes the final image read from r.
	Install(r io.Reader) error
	// Activate marks the installed image to be used on the next boot.
	Activate() error
	// Erase drops the staging area and any installed image that was not
	// activated.
	Erase() error
}

// File names used by FilePartition.
const (
	StagingFile = "ota.staging"
	ImageFile   = "ota.bin"
	BootFile    = "ota.boot"
)

// FilePartition keeps images as files in a directory.
type FilePartition struct {
	dir     string
	staging *os.File
}

// NewFilePartition creates dir if needed and returns a partition rooted
// there.
func NewFilePartition(dir string) (*FilePartition, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FilePartition{dir: dir}, nil
}

func (p *FilePartition) path(name string) string {
	return filepath.Join(p.dir, name)
}

// BootImage returns the path of the activated image.
func (p *FilePartition) BootImage() string {
	return p.path(BootFile)
}

func (p *FilePartition) closeStaging() error {
	if p.staging == nil {
		return nil
	}
	err := p.staging.Close()
	p.staging = nil
	return err
}

// Begin implements Partition.
func (p *FilePartition) Begin() (io.WriteSeeker, error) {
	if err := p.closeStaging(); err != nil {
		return nil, err
	}
	f, err := os.Create(p.path(StagingFile))
	if err != nil {
		return nil, err
	}
	p.staging = f
	return f, nil
}

// Staged implements Partition.
func (p *FilePartition) Staged() (io.ReadCloser, error) {
	if err := p.closeStaging(); err != nil {
		return nil, err
	}
	return os.Open(p.path(StagingFile))
}

// Install implements Partition. The image is written to a temporary file
// and renamed into place.
func (p *FilePartition) Install(r io.Reader) error {
	tmp := p.path(ImageFile + ".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p.path(ImageFile)); err != nil {
		return err
	}
	return os.Remove(p.path(StagingFile))
}

// Activate implements Partition.
func (p *FilePartition) Activate() error {
	return os.Rename(p.path(ImageFile), p.path(BootFile))
}

// Erase implements Partition.
func (p *FilePartition) Erase() error {
	err := p.closeStaging()
	for _, name := range []string{StagingFile, ImageFile, ImageFile + ".tmp"} {
		if rerr := os.Remove(p.path(name)); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = errors.Join(err, rerr)
		}
	}
	return err
}
