package sync

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
)

// prune removes replica entries that no longer exist in the source.
// Directories are removed along with their contents, so the walk never
// descends into them.
func (s *Syncer) prune(res *Result) error {
	exists, err := afero.DirExists(s.fs, s.opts.ReplicaRoot)
	if err != nil {
		return errors.WithContext(err, "check replica root")
	}

	// Only possible in dry-run mode, before the replica was ever created.
	if !exists {
		return nil
	}

	return afero.Walk(s.fs, s.opts.ReplicaRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == s.opts.ReplicaRoot {
				return err
			}
			s.logFailure(res, Failure{Op: "prune", Replica: path, Err: err},
				"Failed to scan replica path")
			return nil
		}

		if path == s.opts.ReplicaRoot {
			return nil
		}

		source, err := s.sourcePath(path)
		if err != nil {
			return err
		}

		orphan, err := s.isOrphan(source, info)
		if err != nil {
			s.logFailure(res, Failure{Op: "prune", Source: source, Replica: path, Err: err},
				"Failed to check source path")
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !orphan {
			return nil
		}

		s.removeReplicaPath(res, path, info.IsDir())
		if info.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
}

// isOrphan returns whether the replica entry described by info has no
// counterpart at source.
func (s *Syncer) isOrphan(source string, info os.FileInfo) (bool, error) {
	if !info.IsDir() && s.opts.PruneExcluded && s.excludes.Match(info.Name()) {
		return true, nil
	}

	if info.IsDir() {
		exists, err := afero.DirExists(s.fs, source)
		return !exists, err
	}

	exists, err := afero.Exists(s.fs, source)
	return !exists, err
}

// removeReplicaPath removes a file or directory from the replica, or logs
// that it would be removed in dry-run mode. It returns false if the removal
// failed.
func (s *Syncer) removeReplicaPath(res *Result, path string, isDir bool) bool {
	kind := "file"
	if isDir {
		kind = "directory"
	}

	if s.opts.DryRun {
		s.log.WithField("path", path).Info("Would remove " + kind)
		res.Removed++
		return true
	}

	var err error
	if isDir {
		err = s.fs.RemoveAll(path)
	} else {
		err = s.fs.Remove(path)
	}
	if err != nil {
		s.logFailure(res, Failure{Op: "remove", Replica: path, Err: err},
			"Failed to remove "+kind)
		return false
	}

	s.log.WithField("path", path).Info("Removed " + kind)
	res.Removed++
	return true
}
