package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFS records every existence check so tests can assert on candidate
// order and short-circuiting.
type fakeFS struct {
	files  map[string]bool
	calls  []string
	failOn map[string]error
}

func newFakeFS(files ...string) *fakeFS {
	fs := &fakeFS{files: make(map[string]bool)}
	for _, f := range files {
		fs.files[f] = true
	}

	return fs
}

func (f *fakeFS) Exists(path string) (bool, error) {
	f.calls = append(f.calls, path)
	if err, ok := f.failOn[path]; ok {
		return false, err
	}

	return f.files[path], nil
}

func TestResolve_PrimaryPathWins(t *testing.T) {
	fs := newFakeFS("snapshots/site1/baseline.png")
	r := New(fs)

	res, err := r.Resolve("snapshots/site1/baseline.png")
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.Equal(t, "snapshots/site1/baseline.png", res.Path)
	assert.Equal(t, "primary", res.Via)
	assert.Len(t, fs.calls, 1, "no further candidates should be checked")
}

func TestResolve_FallbackChain(t *testing.T) {
	tests := []struct {
		name        string
		logicalPath string
		onDisk      []string
		wantPath    string
		wantVia     string
	}{
		{
			name:        "missing snapshots prefix",
			logicalPath: "site1/baseline.png",
			onDisk:      []string{"snapshots/site1/baseline.png"},
			wantPath:    "snapshots/site1/baseline.png",
			wantVia:     "snapshots_prefix",
		},
		{
			name:        "baseline file one directory deeper",
			logicalPath: "site1/baseline_shot.png",
			onDisk:      []string{"site1/baseline/baseline_shot.png"},
			wantPath:    "site1/baseline/baseline_shot.png",
			wantVia:     "baseline_subdir",
		},
		{
			name:        "extra baseline directory segment",
			logicalPath: "snapshots/baseline/site1.png",
			onDisk:      []string{"snapshots/site1.png"},
			wantPath:    "snapshots/site1.png",
			wantVia:     "strip_baseline_dir",
		},
		{
			name:        "png renamed to home",
			logicalPath: "snapshots/site1/baseline.png",
			onDisk:      []string{"snapshots/site1/home.png"},
			wantPath:    "snapshots/site1/home.png",
			wantVia:     "home_png",
		},
		{
			name:        "png renamed to homepage",
			logicalPath: "snapshots/site1/baseline.png",
			onDisk:      []string{"snapshots/site1/homepage.png"},
			wantPath:    "snapshots/site1/homepage.png",
			wantVia:     "homepage_png",
		},
		{
			name:        "jpg renamed to home",
			logicalPath: "snapshots/site1/baseline.jpg",
			onDisk:      []string{"snapshots/site1/home.jpg"},
			wantPath:    "snapshots/site1/home.jpg",
			wantVia:     "home_jpg",
		},
		{
			name:        "jpg renamed to homepage",
			logicalPath: "snapshots/site1/baseline.jpg",
			onDisk:      []string{"snapshots/site1/homepage.jpg"},
			wantPath:    "snapshots/site1/homepage.jpg",
			wantVia:     "homepage_jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeFS(tt.onDisk...)
			r := New(fs)

			res, err := r.Resolve(tt.logicalPath)
			require.NoError(t, err)

			assert.True(t, res.Found)
			assert.Equal(t, tt.wantPath, res.Path)
			assert.Equal(t, tt.wantVia, res.Via)
		})
	}
}

func TestResolve_NotFound(t *testing.T) {
	fs := newFakeFS()
	r := New(fs)

	res, err := r.Resolve("ghost/none.png")
	require.NoError(t, err)

	assert.False(t, res.Found)
	assert.Empty(t, res.Path)

	// Primary path plus every transform candidate, no-ops included.
	assert.Len(t, fs.calls, len(DefaultTransforms())+1)
}

func TestResolve_NoDoublePrefix(t *testing.T) {
	fs := newFakeFS()
	r := New(fs)

	_, err := r.Resolve("snapshots/site1/baseline.png")
	require.NoError(t, err)

	for _, call := range fs.calls {
		assert.NotContains(t, call, "snapshots/snapshots/")
	}
}

func TestResolve_ShortCircuitsOnFirstMatch(t *testing.T) {
	// Only the home_png candidate exists; later jpg candidates must not
	// be checked once it matches.
	fs := newFakeFS("snapshots/site1/home.png")
	r := New(fs)

	res, err := r.Resolve("snapshots/site1/baseline.png")
	require.NoError(t, err)
	require.True(t, res.Found)

	assert.Equal(t, "snapshots/site1/home.png", fs.calls[len(fs.calls)-1])
	for _, call := range fs.calls {
		assert.NotContains(t, call, "homepage")
	}
}

func TestResolve_CandidateOrderIsStable(t *testing.T) {
	fs := newFakeFS()
	r := New(fs)

	_, err := r.Resolve("site1/baseline.png")
	require.NoError(t, err)

	want := []string{
		"site1/baseline.png",
		"snapshots/site1/baseline.png",
		"site1/baseline.png",
		"site1/baseline.png",
		"site1/home.png",
		"site1/homepage.png",
		"site1/baseline.png",
		"site1/baseline.png",
	}
	assert.Equal(t, want, fs.calls)
}

func TestResolve_Idempotent(t *testing.T) {
	fs := newFakeFS("snapshots/site1/home.png")
	r := New(fs)

	first, err := r.Resolve("snapshots/site1/baseline.png")
	require.NoError(t, err)

	second, err := r.Resolve("snapshots/site1/baseline.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolve_CheckFailurePropagates(t *testing.T) {
	fs := newFakeFS()
	fs.failOn = map[string]error{
		"snapshots/site1/baseline.png": errors.New("permission denied"),
	}
	r := New(fs)

	_, err := r.Resolve("site1/baseline.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestOSFilesystem_Exists(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "snapshots", "site1"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "snapshots", "site1", "baseline.png"),
		[]byte("png"),
		0644,
	))

	fs := OSFilesystem{Root: root}

	ok, err := fs.Exists("snapshots/site1/baseline.png")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fs.Exists("snapshots/site1/missing.png")
	require.NoError(t, err)
	assert.False(t, ok)
}
