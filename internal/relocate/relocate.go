// Package relocate moves uploaded files into the destination folder.
//
// A move either completes or reports one of the error kinds below. The
// destination name never collides with an existing file, and a cross-device
// move copies into a hidden partial name first so a half-written file never
// appears under the final name.
package relocate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"hopper/internal/fileutil"
)

var (
	ErrNotFound         = errors.New("source not found")
	ErrBusy             = errors.New("file busy")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceError      = errors.New("device error")
)

const (
	timestampLayout = "20060102-150405"
	maxCandidates   = 1000
)

// Relocator moves files. The zero value uses the real clock and filesystem.
type Relocator struct {
	// Now is replaced in tests.
	Now func() time.Time

	// rename must fail with an fs.ErrExist error rather than replace newpath.
	rename func(oldpath, newpath string) error
}

// Relocate moves a file into destinationDir with a default Relocator.
func Relocate(sourcePath, destinationDir string) (string, error) {
	var r Relocator
	return r.Relocate(sourcePath, destinationDir)
}

// Relocate moves sourcePath into destinationDir and returns the final path.
func (r *Relocator) Relocate(sourcePath, destinationDir string) (string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", classify("stat source", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrDeviceError, sourcePath)
	}
	if err := os.MkdirAll(destinationDir, 0o755); err != nil {
		return "", classify("create destination", err)
	}

	move := r.rename
	if move == nil {
		move = renameNoReplace
	}
	names := r.candidates(sourcePath, destinationDir)
	for i, target := range names {
		err := move(sourcePath, target)
		switch {
		case err == nil:
			return target, nil
		case errors.Is(err, fs.ErrExist):
			continue
		case errors.Is(err, unix.EXDEV):
			return r.copyAcross(sourcePath, names[i:], move)
		default:
			return "", classify("rename", err)
		}
	}
	return "", noFreeName(sourcePath, destinationDir)
}

// copyAcross handles moves between filesystems: copy to a hidden partial name,
// verify, claim the first free name, then remove the source.
func (r *Relocator) copyAcross(sourcePath string, names []string, move func(string, string) error) (string, error) {
	dir := filepath.Dir(names[0])
	partial := filepath.Join(dir, "."+filepath.Base(names[0])+".partial-"+uuid.NewString()[:8])
	if err := fileutil.CopyFileVerified(sourcePath, partial); err != nil {
		return "", classify("copy across devices", err)
	}
	for _, target := range names {
		err := move(partial, target)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			_ = os.Remove(partial)
			return "", classify("finalize copy", err)
		}
		if err := os.Remove(sourcePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			// The destination is complete; drop it so the file exists in exactly one place.
			_ = os.Remove(target)
			return "", classify("remove source after copy", err)
		}
		return target, nil
	}
	_ = os.Remove(partial)
	return "", noFreeName(sourcePath, dir)
}

// candidates lists destination names in order of preference: the original
// base name, then base-<timestamp>.ext, then base-<timestamp>-N.ext.
func (r *Relocator) candidates(sourcePath, dir string) []string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stamp := now().Format(timestampLayout)

	names := make([]string, 0, maxCandidates)
	names = append(names, filepath.Join(dir, base))
	for i := 1; i < maxCandidates; i++ {
		name := fmt.Sprintf("%s-%s%s", stem, stamp, ext)
		if i > 1 {
			name = fmt.Sprintf("%s-%s-%d%s", stem, stamp, i, ext)
		}
		names = append(names, filepath.Join(dir, name))
	}
	return names
}

func noFreeName(sourcePath, dir string) error {
	return fmt.Errorf("%w: no free destination name for %s in %s", ErrDeviceError, filepath.Base(sourcePath), dir)
}

// linkNoReplace claims newpath with a hard link, which fails with EEXIST
// instead of replacing an existing file, then drops oldpath.
func linkNoReplace(oldpath, newpath string) error {
	if err := os.Link(oldpath, newpath); err != nil {
		return err
	}
	if err := os.Remove(oldpath); err != nil {
		_ = os.Remove(newpath)
		return err
	}
	return nil
}

// classify maps filesystem errors onto the relocation error kinds, keeping
// the original error in the chain.
func classify(op string, err error) error {
	var kind error
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = ErrNotFound
	case errors.Is(err, unix.EBUSY), errors.Is(err, unix.ETXTBSY), errors.Is(err, unix.EAGAIN):
		kind = ErrBusy
	case errors.Is(err, fs.ErrPermission), errors.Is(err, unix.EROFS):
		kind = ErrPermissionDenied
	default:
		kind = ErrDeviceError
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
