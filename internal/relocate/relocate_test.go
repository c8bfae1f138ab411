package relocate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRelocateMovesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "set.mp3")
	dest := filepath.Join(dir, "uploaded")
	writeFile(t, src, "audio")

	final, err := Relocate(src, dest)
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if final != filepath.Join(dest, "set.mp3") {
		t.Fatalf("unexpected final path %s", final)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("source should be gone")
	}
	got, err := os.ReadFile(final)
	if err != nil || string(got) != "audio" {
		t.Fatalf("unexpected destination content %q (%v)", got, err)
	}
}

func TestRelocateAvoidsCollisionsWithTimestamp(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "uploaded")
	writeFile(t, filepath.Join(dest, "set.mp3"), "old")
	writeFile(t, filepath.Join(dest, "set-20260301-120000.mp3"), "older")

	r := Relocator{Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local) }}

	src := filepath.Join(dir, "set.mp3")
	writeFile(t, src, "new")
	final, err := r.Relocate(src, dest)
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if want := filepath.Join(dest, "set-20260301-120000-2.mp3"); final != want {
		t.Fatalf("got %s want %s", final, want)
	}
	old, _ := os.ReadFile(filepath.Join(dest, "set.mp3"))
	if string(old) != "old" {
		t.Fatal("existing destination was overwritten")
	}
}

func TestRelocateNeverClobbersFileCreatedDuringMove(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "uploaded")
	src := filepath.Join(dir, "set.mp3")
	writeFile(t, src, "new")

	var attempts []string
	r := Relocator{
		Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local) },
		rename: func(oldpath, newpath string) error {
			attempts = append(attempts, filepath.Base(newpath))
			if len(attempts) == 1 {
				// Another writer claims the name first.
				writeFile(t, newpath, "racer")
			}
			return renameNoReplace(oldpath, newpath)
		},
	}

	final, err := r.Relocate(src, dest)
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if want := filepath.Join(dest, "set-20260301-120000.mp3"); final != want {
		t.Fatalf("got %s want %s (attempts %v)", final, want, attempts)
	}
	racer, _ := os.ReadFile(filepath.Join(dest, "set.mp3"))
	if string(racer) != "racer" {
		t.Fatalf("file created during the move was overwritten: %q", racer)
	}
	moved, _ := os.ReadFile(final)
	if string(moved) != "new" {
		t.Fatalf("unexpected moved content %q", moved)
	}
}

func TestLinkNoReplaceRefusesExistingTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp3")
	dst := filepath.Join(dir, "b.mp3")
	writeFile(t, src, "a")
	writeFile(t, dst, "b")

	if err := linkNoReplace(src, dst); !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "b" {
		t.Fatalf("target replaced: %q", got)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source must remain: %v", err)
	}

	fresh := filepath.Join(dir, "c.mp3")
	if err := linkNoReplace(src, fresh); err != nil {
		t.Fatalf("linkNoReplace: %v", err)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("source should be gone after link")
	}
}

func TestRelocateMissingSourceIsNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Relocate(filepath.Join(dir, "missing.mp3"), filepath.Join(dir, "uploaded"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRelocateFallsBackToCopyAcrossDevices(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "set.mp3")
	dest := filepath.Join(dir, "uploaded")
	writeFile(t, src, "cross-device audio")

	calls := 0
	r := Relocator{rename: func(oldpath, newpath string) error {
		calls++
		if calls == 1 {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}
		if !strings.Contains(filepath.Base(oldpath), ".partial-") {
			t.Errorf("expected partial file to be renamed into place, got %s", oldpath)
		}
		return os.Rename(oldpath, newpath)
	}}

	final, err := r.Relocate(src, dest)
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	got, err := os.ReadFile(final)
	if err != nil || string(got) != "cross-device audio" {
		t.Fatalf("unexpected destination content %q (%v)", got, err)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("source should be removed after verified copy")
	}
	entries, _ := os.ReadDir(dest)
	if len(entries) != 1 {
		t.Fatalf("expected only the final file in destination, got %d entries", len(entries))
	}
}

func TestRelocateCleansPartialWhenFinalRenameFails(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "set.mp3")
	dest := filepath.Join(dir, "uploaded")
	writeFile(t, src, "audio")

	calls := 0
	r := Relocator{rename: func(oldpath, newpath string) error {
		calls++
		if calls == 1 {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EIO}
	}}

	_, err := r.Relocate(src, dest)
	if !errors.Is(err, ErrDeviceError) {
		t.Fatalf("expected ErrDeviceError, got %v", err)
	}
	entries, _ := os.ReadDir(dest)
	if len(entries) != 0 {
		t.Fatalf("partial file left behind: %d entries", len(entries))
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatal("source must remain after failed relocation")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&os.PathError{Op: "rename", Err: syscall.ENOENT}, ErrNotFound},
		{&os.PathError{Op: "rename", Err: unix.EBUSY}, ErrBusy},
		{&os.PathError{Op: "rename", Err: unix.EACCES}, ErrPermissionDenied},
		{&os.PathError{Op: "rename", Err: unix.EPERM}, ErrPermissionDenied},
		{&os.PathError{Op: "rename", Err: unix.EROFS}, ErrPermissionDenied},
		{&os.PathError{Op: "rename", Err: unix.ENOSPC}, ErrDeviceError},
		{&os.PathError{Op: "rename", Err: unix.EIO}, ErrDeviceError},
	}
	for _, tc := range tests {
		got := classify("rename", tc.err)
		if !errors.Is(got, tc.want) {
			t.Errorf("%v: expected %v, got %v", tc.err, tc.want, got)
		}
		if !errors.Is(got, tc.err) {
			t.Errorf("%v: original error not kept in chain", tc.err)
		}
	}
}
