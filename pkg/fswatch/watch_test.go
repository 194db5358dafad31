package fswatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/foldersync/pkg/errors"
	"github.com/sidkik/foldersync/pkg/sync"
)

func TestGetPathsToWatch(t *testing.T) {
	tests := []struct {
		name     string
		root     string
		dirs     []string
		files    []string
		expPaths []string
		expError error
	}{
		{
			name:  "Nested directories",
			root:  "/src",
			dirs:  []string{"/src/app", "/src/app/controllers", "/src/tests"},
			files: []string{"/src/package.json", "/src/app/controllers/index.js", "/src/tests/test.js"},
			expPaths: []string{"/src", "/src/app", "/src/app/controllers",
				"/src/tests"},
		},
		{
			name:     "Single file",
			root:     "/src/package.json",
			files:    []string{"/src/package.json"},
			expPaths: []string{"/src/package.json"},
		},
		{
			name:     "Missing root",
			root:     "/missing",
			expError: errors.FileNotFound{Path: "/missing"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for _, dir := range test.dirs {
				assert.NoError(t, fs.MkdirAll(dir, 0755))
			}
			for _, file := range test.files {
				assert.NoError(t, afero.WriteFile(fs, file, []byte("testfile"), 0644))
			}

			paths, err := getPathsToWatch(fs, test.root)
			if test.expError != nil {
				assert.Equal(t, test.expError, err)
				return
			}
			assert.NoError(t, err)
			assert.ElementsMatch(t, test.expPaths, paths)
		})
	}
}

func TestHandleCombinesEvents(t *testing.T) {
	excludes, err := sync.CompileExcludes([]string{"*.tmp"})
	require.NoError(t, err)

	logger, _ := logrusTest.NewNullLogger()
	w := &Watcher{
		fs:       afero.NewMemMapFs(),
		excludes: excludes,
		events:   make(chan struct{}, 1),
		log:      logger,
	}

	w.handle(fsnotify.Event{Name: "/src/scratch.tmp", Op: fsnotify.Write})
	assert.Len(t, w.events, 0)

	w.handle(fsnotify.Event{Name: "/src/a.txt", Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: "/src/b.txt", Op: fsnotify.Remove})
	assert.Len(t, w.events, 1)
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))

	logger, _ := logrusTest.NewNullLogger()
	w, err := Watch(afero.NewOsFs(), root, sync.ExcludeRules{}, logger)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "a.txt"), []byte("a"), 0644))
	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}
