//go:build !linux

package lockmgr

func renameNoReplace(oldPath, newPath string) error {
	return statRename(oldPath, newPath)
}
