//go:build !linux

package relocate

func renameNoReplace(oldpath, newpath string) error {
	return linkNoReplace(oldpath, newpath)
}
