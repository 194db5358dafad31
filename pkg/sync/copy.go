package sync

import (
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
)

// tempFilePattern names the files that copies are staged in. A leftover from
// an interrupted copy has no source counterpart, so the next prune removes it.
const tempFilePattern = ".foldersync-*.tmp"

// copyFile copies the contents, permission bits and modification time of src
// to dst. The data is written to a temporary file next to dst, which is then
// renamed over dst, so dst is never left truncated and its own permissions
// don't matter.
func copyFile(fs afero.Fs, src, dst string) error {
	srcFile, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer srcFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	// A directory in the replica that's now a file in the source.
	if dstInfo, err := fs.Stat(dst); err == nil && dstInfo.IsDir() {
		if err := fs.RemoveAll(dst); err != nil {
			return errors.WithContext(err, "remove directory at destination")
		}
	}

	tmpFile, err := afero.TempFile(fs, filepath.Dir(dst), tempFilePattern)
	if err != nil {
		return errors.WithContext(err, "create temporary file")
	}

	tmpPath := tmpFile.Name()
	defer func() {
		// Cleared once the rename succeeds.
		if tmpPath != "" {
			fs.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		tmpFile.Close()
		return errors.WithContext(err, "copy")
	}

	if err := tmpFile.Close(); err != nil {
		return errors.WithContext(err, "close temporary file")
	}

	if err := fs.Chmod(tmpPath, fileInfo.Mode().Perm()); err != nil {
		return errors.WithContext(err, "set file mode")
	}

	// Change the modification time after the file is closed so that it
	// doesn't get reset by the final write.
	if err := fs.Chtimes(tmpPath, time.Now(), fileInfo.ModTime()); err != nil {
		return errors.WithContext(err, "set file modtime")
	}

	if err := fs.Rename(tmpPath, dst); err != nil {
		return errors.WithContext(err, "rename temporary file")
	}
	tmpPath = ""
	return nil
}
