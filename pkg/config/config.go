package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
	"github.com/sidkik/foldersync/pkg/sync"
)

// DefaultInterval is the number of seconds between sync passes when neither
// the command line nor the config file sets one.
const DefaultInterval = 60

// parseConfigErrTemplate is a template for when the config file fails to
// parse. The yaml library constructs errors in a way that loses context, so
// we can only pass the error message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// homedirExpand is mocked out by the tests.
var homedirExpand = homedir.Expand

// Config contains the resolved parameters of a foldersync run.
type Config struct {
	Source        string
	Replica       string
	Interval      int
	LogFile       string
	Exclude       []string
	DryRun        bool
	PruneExcluded bool
	Workers       int
	Watch         bool
}

// File is the contents of a config file. Fields are pointers so that a key
// that's absent from the file can be told apart from one that's set to its
// zero value.
type File struct {
	Source        *string   `json:"source,omitempty"`
	Replica       *string   `json:"replica,omitempty"`
	Interval      *int      `json:"interval,omitempty"`
	LogFile       *string   `json:"logfile,omitempty"`
	Exclude       *[]string `json:"exclude,omitempty"`
	DryRun        *bool     `json:"dry_run,omitempty"`
	PruneExcluded *bool     `json:"prune_excluded,omitempty"`
	Workers       *int      `json:"workers,omitempty"`
	Watch         *bool     `json:"watch,omitempty"`

	path string
}

// GetPath returns the path that the file was parsed from.
func (f File) GetPath() string {
	return f.path
}

// Parse reads the config file at path. Both JSON and YAML are accepted, and
// unknown keys are rejected.
func Parse(path string) (File, error) {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, errors.FileNotFound{Path: path}
		}
		return File{}, errors.WithContext(err, "read file")
	}

	var file File
	if err := yaml.UnmarshalStrict(configBytes, &file, yaml.DisallowUnknownFields); err != nil {
		return File{}, errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}
	file.path = path
	return file, nil
}

// Merge overlays the keys set in file onto flags. A key that's present in
// the config file always wins over the command line.
func Merge(flags Config, file File) Config {
	merged := flags
	if file.Source != nil {
		merged.Source = *file.Source
	}
	if file.Replica != nil {
		merged.Replica = *file.Replica
	}
	if file.Interval != nil {
		merged.Interval = *file.Interval
	}
	if file.LogFile != nil {
		merged.LogFile = *file.LogFile
	}
	if file.Exclude != nil {
		merged.Exclude = append([]string{}, *file.Exclude...)
	}
	if file.DryRun != nil {
		merged.DryRun = *file.DryRun
	}
	if file.PruneExcluded != nil {
		merged.PruneExcluded = *file.PruneExcluded
	}
	if file.Workers != nil {
		merged.Workers = *file.Workers
	}
	if file.Watch != nil {
		merged.Watch = *file.Watch
	}
	return merged
}

// Resolve expands `~` in the config's paths and cleans them.
func (c Config) Resolve() (Config, error) {
	for _, path := range []*string{&c.Source, &c.Replica, &c.LogFile} {
		if *path == "" {
			continue
		}

		expanded, err := homedirExpand(*path)
		if err != nil {
			return Config{}, errors.WithContext(err, "expand home directory")
		}
		*path = filepath.Clean(expanded)
	}
	return c, nil
}

// Validate checks that the config can be used to start a sync.
func (c Config) Validate() error {
	if c.Source == "" {
		return errors.MissingFieldError{Field: "source"}
	}
	if c.Replica == "" {
		return errors.MissingFieldError{Field: "replica"}
	}
	if c.Interval <= 0 {
		return errors.InvalidFieldError{Field: "interval",
			Reason: fmt.Sprintf("must be a positive number of seconds, got %d", c.Interval)}
	}
	if c.Workers < 0 {
		return errors.InvalidFieldError{Field: "workers",
			Reason: fmt.Sprintf("must not be negative, got %d", c.Workers)}
	}
	if _, err := sync.CompileExcludes(c.Exclude); err != nil {
		return errors.InvalidFieldError{Field: "exclude", Reason: err.Error()}
	}

	nested, err := isNested(c.Source, c.Replica)
	if err != nil {
		return errors.WithContext(err, "compare roots")
	}
	if nested {
		return errors.NewFriendlyError(
			"The source %q and replica %q overlap.\n"+
				"Neither directory may be inside the other, otherwise every "+
				"pass would copy the replica into itself.", c.Source, c.Replica)
	}
	return nil
}

// isNested returns whether a and b are the same directory, or one contains
// the other.
func isNested(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return isWithin(absA, absB) || isWithin(absB, absA), nil
}

func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
