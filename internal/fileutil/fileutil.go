// Package fileutil holds file copy helpers shared by relocation code.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrVerifyMismatch reports a copy whose size or content differs from the source.
var ErrVerifyMismatch = errors.New("copy verification failed")

// CopyFileVerified copies src to a new file at dst, keeping the source
// permissions. dst must not exist. The data is flushed to disk and read back
// to compare SHA-256 digests; on any failure dst is removed so no partial
// file is left behind.
func CopyFileVerified(src, dst string) (err error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	srcHasher := sha256.New()
	written, err := io.Copy(out, io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("sync copy: %w", err)
	}
	if err = out.Close(); err != nil {
		return err
	}
	if written != srcInfo.Size() {
		return fmt.Errorf("%w: source %d bytes, copied %d bytes", ErrVerifyMismatch, srcInfo.Size(), written)
	}

	dstSum, err := hashFile(dst)
	if err != nil {
		return fmt.Errorf("read back copy: %w", err)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstSum) {
		return fmt.Errorf("%w: content hash differs", ErrVerifyMismatch)
	}
	return nil
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
