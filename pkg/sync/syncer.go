package sync

import (
	"os"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
)

// Options are the resolved parameters of a Syncer.
type Options struct {
	// SourceRoot is the directory tree that's mirrored.
	SourceRoot string

	// ReplicaRoot is the directory tree that's kept identical to SourceRoot.
	ReplicaRoot string

	// DryRun disables all filesystem mutations. Every decision is still
	// computed and logged.
	DryRun bool

	// Exclude contains glob patterns matched against file names. Matching
	// source files are never copied.
	Exclude []string

	// PruneExcluded also removes replica files whose names match Exclude,
	// even if they still exist in the source. By default pruning only
	// considers whether the source path exists.
	PruneExcluded bool

	// Workers is the number of concurrent copies. Zero means one worker per
	// available CPU.
	Workers int
}

// Pair is a source file and the replica path it must be copied to.
type Pair struct {
	Source  string
	Replica string
}

// Failure describes an item that couldn't be synced during a pass. It's left
// as is until the next pass tries again.
type Failure struct {
	Op      string
	Source  string
	Replica string
	Err     error
}

// Result summarizes a pass. In dry-run mode, the counters describe what
// would have happened.
type Result struct {
	DryRun      bool
	DirsCreated int
	Copied      int
	Excluded    int
	Unchanged   int
	Removed     int
	Failures    []Failure
}

// Syncer makes a replica directory tree mirror a source directory tree. Each
// call to RunPass performs one complete scan, copy and prune cycle.
type Syncer struct {
	fs       afero.Fs
	log      log.FieldLogger
	opts     Options
	excludes ExcludeRules
}

// New creates a Syncer that operates on fs and reports every decision to
// logger.
func New(fs afero.Fs, logger log.FieldLogger, opts Options) (*Syncer, error) {
	if opts.SourceRoot == "" {
		return nil, errors.MissingFieldError{Field: "source"}
	}
	if opts.ReplicaRoot == "" {
		return nil, errors.MissingFieldError{Field: "replica"}
	}

	excludes, err := CompileExcludes(opts.Exclude)
	if err != nil {
		return nil, err
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	opts.SourceRoot = filepath.Clean(opts.SourceRoot)
	opts.ReplicaRoot = filepath.Clean(opts.ReplicaRoot)

	return &Syncer{
		fs:       fs,
		log:      logger,
		opts:     opts,
		excludes: excludes,
	}, nil
}

// RunPass synchronizes the replica with the source once. Item-level failures
// are logged and reported in the Result. The returned error is only set if
// the pass couldn't run to completion, for example because the source root
// disappeared.
func (s *Syncer) RunPass() (*Result, error) {
	res := &Result{DryRun: s.opts.DryRun}

	srcInfo, err := s.fs.Stat(s.opts.SourceRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return res, errors.FileNotFound{Path: s.opts.SourceRoot}
		}
		return res, errors.WithContext(err, "stat source root")
	}
	if !srcInfo.IsDir() {
		return res, errors.New("source root %q is not a directory", s.opts.SourceRoot)
	}

	toCopy, err := s.scan(res)
	if err != nil {
		return res, errors.WithContext(err, "scan source")
	}

	s.apply(toCopy, res)

	if err := s.prune(res); err != nil {
		return res, errors.WithContext(err, "prune replica")
	}

	s.log.WithFields(log.Fields{
		"dryRun":      res.DryRun,
		"dirsCreated": res.DirsCreated,
		"copied":      res.Copied,
		"excluded":    res.Excluded,
		"unchanged":   res.Unchanged,
		"removed":     res.Removed,
		"failed":      len(res.Failures),
	}).Info("Sync pass complete")
	return res, nil
}

// replicaPath returns the path in the replica that corresponds to path in
// the source.
func (s *Syncer) replicaPath(path string) (string, error) {
	rel, err := filepath.Rel(s.opts.SourceRoot, path)
	if err != nil {
		return "", errors.WithContext(err, "relative path")
	}
	return filepath.Join(s.opts.ReplicaRoot, rel), nil
}

// sourcePath is the inverse of replicaPath.
func (s *Syncer) sourcePath(path string) (string, error) {
	rel, err := filepath.Rel(s.opts.ReplicaRoot, path)
	if err != nil {
		return "", errors.WithContext(err, "relative path")
	}
	return filepath.Join(s.opts.SourceRoot, rel), nil
}

// logFailure logs and records an item-level failure.
func (s *Syncer) logFailure(res *Result, f Failure, msg string) {
	fields := log.Fields{"op": f.Op}
	if f.Source != "" {
		fields["source"] = f.Source
	}
	if f.Replica != "" {
		fields["replica"] = f.Replica
	}
	s.log.WithError(f.Err).WithFields(fields).Error(msg)
	res.Failures = append(res.Failures, f)
}
