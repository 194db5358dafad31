package sync

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
)

// replicaDirMode is the mode of directories created in the replica.
const replicaDirMode = 0755

// scan walks the source tree, creates the replica's directory skeleton, and
// returns the files that need to be copied. Files are compared against their
// replica counterparts as they're visited, so each path is classified once.
func (s *Syncer) scan(res *Result) ([]Pair, error) {
	var toCopy []Pair

	// Replica directories that a dry run would have created. Nothing below
	// them exists yet, even if a file is still in their place.
	pending := map[string]bool{}

	err := afero.Walk(s.fs, s.opts.SourceRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == s.opts.SourceRoot {
				return err
			}

			// The entry disappeared or is unreadable. Skip it until the next
			// pass rather than failing everything else.
			s.logFailure(res, Failure{Op: "scan", Source: path, Err: err},
				"Failed to scan source path")
			return nil
		}

		replica, err := s.replicaPath(path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			return s.scanDir(res, pending, path, replica)
		}

		if s.excludes.Match(info.Name()) {
			s.log.WithField("path", path).Info("Excluding file")
			res.Excluded++
			return nil
		}

		needsCopy, err := s.needsCopy(pending, path, replica)
		if err != nil {
			s.logFailure(res, Failure{Op: "compare", Source: path, Replica: replica, Err: err},
				"Failed to compare files")
			return nil
		}

		if needsCopy {
			toCopy = append(toCopy, Pair{Source: path, Replica: replica})
		} else {
			res.Unchanged++
		}
		return nil
	})
	return toCopy, err
}

// scanDir makes sure that the replica directory exists before the walk
// descends into the source directory.
func (s *Syncer) scanDir(res *Result, pending map[string]bool, source, replica string) error {
	replicaInfo, err := s.statReplica(pending, replica)
	switch {
	case err == nil && replicaInfo.IsDir():
		return nil
	case err == nil:
		// A file is in the way of the directory.
		if !s.removeReplicaPath(res, replica, false) {
			return filepath.SkipDir
		}
	case !os.IsNotExist(err):
		s.logFailure(res, Failure{Op: "scan", Source: source, Replica: replica,
			Err: errors.WithContext(err, "stat replica")}, "Failed to scan source path")
		return filepath.SkipDir
	}

	if s.opts.DryRun {
		s.log.WithField("path", replica).Info("Would create directory")
		res.DirsCreated++
		pending[replica] = true
		return nil
	}

	if err := s.fs.MkdirAll(replica, replicaDirMode); err != nil {
		s.logFailure(res, Failure{Op: "mkdir", Source: source, Replica: replica, Err: err},
			"Failed to create directory")
		return filepath.SkipDir
	}

	s.log.WithField("path", replica).Info("Created directory")
	res.DirsCreated++
	return nil
}

// needsCopy returns whether the source file must be copied over the replica
// path.
func (s *Syncer) needsCopy(pending map[string]bool, source, replica string) (bool, error) {
	replicaInfo, err := s.statReplica(pending, replica)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.WithContext(err, "stat replica")
	}

	// The directory gets replaced when the file is copied.
	if replicaInfo.IsDir() {
		return true, nil
	}
	return Differs(s.fs, source, replica)
}

// statReplica stats a replica path, treating paths inside pending directories
// as missing.
func (s *Syncer) statReplica(pending map[string]bool, replica string) (os.FileInfo, error) {
	if pending[filepath.Dir(replica)] {
		return nil, &os.PathError{Op: "stat", Path: replica, Err: os.ErrNotExist}
	}
	return s.fs.Stat(replica)
}
