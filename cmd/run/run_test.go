package run

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/foldersync/pkg/config"
	"github.com/sidkik/foldersync/pkg/errors"
)

func TestGetConfig(t *testing.T) {
	configDir := t.TempDir()
	configPath := filepath.Join(configDir, "foldersync.json")
	missingPath := filepath.Join(configDir, "missing.json")

	tests := []struct {
		name       string
		cmd        runCmd
		configFile string
		expConfig  config.Config
		expFriend  string
	}{
		{
			name: "FlagsOnly",
			cmd: runCmd{flags: config.Config{
				Source:   "/data/src/",
				Replica:  "/data/replica",
				Interval: config.DefaultInterval,
				Exclude:  []string{"*.tmp"},
			}},
			expConfig: config.Config{
				Source:   "/data/src",
				Replica:  "/data/replica",
				Interval: config.DefaultInterval,
				Exclude:  []string{"*.tmp"},
			},
		},
		{
			name: "ConfigFileWins",
			cmd: runCmd{
				configPath: configPath,
				flags: config.Config{
					Source:   "/flag/src",
					Replica:  "/flag/replica",
					Interval: config.DefaultInterval,
					DryRun:   true,
				},
			},
			configFile: `{"replica": "/file/replica", "interval": 5, "dry_run": false}`,
			expConfig: config.Config{
				Source:   "/flag/src",
				Replica:  "/file/replica",
				Interval: 5,
			},
		},
		{
			name: "MissingConfigFile",
			cmd: runCmd{
				configPath: missingPath,
				flags:      config.Config{Source: "/src", Replica: "/replica", Interval: 1},
			},
			expFriend: fmt.Sprintf("Config file not found at %q.", missingPath),
		},
		{
			name:      "MissingSource",
			cmd:       runCmd{flags: config.Config{Replica: "/replica", Interval: 1}},
			expFriend: "The source directory is required. Set it with --source or in the config file.",
		},
		{
			name:      "InvalidInterval",
			cmd:       runCmd{flags: config.Config{Source: "/src", Replica: "/replica"}},
			expFriend: "Invalid interval: must be a positive number of seconds, got 0.",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			if test.configFile != "" {
				require.NoError(t, ioutil.WriteFile(configPath, []byte(test.configFile), 0644))
			}

			cfg, err := test.cmd.getConfig()
			if test.expFriend != "" {
				friendly, ok := errors.RootCause(err).(errors.Friendly)
				require.True(t, ok, "expected a friendly error, got %v", err)
				assert.Equal(t, test.expFriend, friendly.FriendlyMessage())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expConfig, cfg)
		})
	}
}

func TestRunOnce(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/docs/a.txt", []byte("a"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/src/cache.tmp", []byte("tmp"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/replica/stale.txt", []byte("stale"), 0644))

	cmd := runCmd{
		once: true,
		flags: config.Config{
			Source:   "/src",
			Replica:  "/replica",
			Interval: config.DefaultInterval,
			Exclude:  []string{"*.tmp"},
		},
	}

	var console bytes.Buffer
	require.NoError(t, cmd.run(context.Background(), &console))

	contents, err := afero.ReadFile(fs, "/replica/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a", string(contents))

	for _, path := range []string{"/replica/cache.tmp", "/replica/stale.txt"} {
		exists, err := afero.Exists(fs, path)
		require.NoError(t, err)
		assert.False(t, exists, path)
	}

	out := console.String()
	assert.Contains(t, out, `msg="Starting folder synchronization"`)
	assert.Contains(t, out, `msg="Sync pass complete"`)
}

func TestRunOnceMissingSource(t *testing.T) {
	fs = afero.NewMemMapFs()

	cmd := runCmd{
		once:  true,
		flags: config.Config{Source: "/src", Replica: "/replica", Interval: 1},
	}

	var console bytes.Buffer
	err := cmd.run(context.Background(), &console)

	friendly, ok := errors.RootCause(err).(errors.Friendly)
	require.True(t, ok, "expected a friendly error, got %v", err)
	assert.Equal(t, `The sync pass failed: "/src" does not exist`, friendly.FriendlyMessage())

	// The failure is only logged once.
	assert.Equal(t, 1, strings.Count(console.String(), "level=error"))
	assert.Contains(t, console.String(), `msg="Sync pass failed"`)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/a.txt", []byte("a"), 0644))

	cmd := runCmd{flags: config.Config{Source: "/src", Replica: "/replica", Interval: 3600}}

	// The first pass always runs before the scheduler checks the context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var console bytes.Buffer
	require.NoError(t, cmd.run(ctx, &console))

	exists, err := afero.Exists(fs, "/replica/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Contains(t, console.String(), `msg="Stopping folder synchronization"`)
}

func TestNewFlags(t *testing.T) {
	cobraCmd := New()
	require.NoError(t, cobraCmd.ParseFlags([]string{
		"--source", "/src",
		"--replica=/replica",
		"--exclude", "*.tmp,*.log",
		"--exclude", "*.bak",
		"--dry-run",
		"--workers", "3",
	}))

	for flag, exp := range map[string]string{
		"source":   "/src",
		"replica":  "/replica",
		"interval": "60",
		"exclude":  "[*.tmp,*.log,*.bak]",
		"dry-run":  "true",
		"workers":  "3",
		"watch":    "false",
		"once":     "false",
	} {
		assert.Equal(t, exp, cobraCmd.Flags().Lookup(flag).Value.String(), flag)
	}
}
