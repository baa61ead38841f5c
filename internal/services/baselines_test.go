package services

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/snapshotd/internal/models"
	"github.com/sitewatch/snapshotd/internal/previews"
	"github.com/sitewatch/snapshotd/internal/repository"
	"github.com/sitewatch/snapshotd/internal/resolver"
)

type fakeSiteRepo struct {
	baselines map[int64]string
	updates   map[int64]string
}

func newFakeSiteRepo() *fakeSiteRepo {
	return &fakeSiteRepo{
		baselines: make(map[int64]string),
		updates:   make(map[int64]string),
	}
}

func (r *fakeSiteRepo) GetBaselinePath(
	ctx context.Context,
	siteID int64,
) (string, error) {
	path, ok := r.baselines[siteID]
	if !ok || path == "" {
		return "", repository.ErrNotFound
	}

	return path, nil
}

func (r *fakeSiteRepo) UpdateBaselinePath(
	ctx context.Context,
	siteID int64,
	path string,
) error {
	r.baselines[siteID] = path
	r.updates[siteID] = path
	return nil
}

func (r *fakeSiteRepo) PurgeTestData(ctx context.Context) (int64, error) {
	return 0, nil
}

type fakePreviewGen struct {
	generated []previews.PreviewMeta
}

func (g *fakePreviewGen) Generate(
	ctx context.Context,
	meta previews.PreviewMeta,
) error {
	g.generated = append(g.generated, meta)
	return nil
}

// writeBaseline writes a decodable 1x1 PNG at relPath under root.
func writeBaseline(t *testing.T, root, relPath string) {
	t.Helper()

	absPath := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(absPath), 0755))

	f, err := os.Create(absPath)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 1, 1))))
}

func newTestService(
	t *testing.T,
	repo *fakeSiteRepo,
	gen *fakePreviewGen,
) (*BaselinesService, string) {
	t.Helper()

	snapshotsRoot := t.TempDir()
	svc := NewBaselinesService(
		BaselinesConfig{
			DirSnapshotsRoot: snapshotsRoot,
			DirPreviewsRoot:  t.TempDir(),
			PreviewWidths:    []int{320},
		},
		repo,
		resolver.New(resolver.OSFilesystem{Root: snapshotsRoot}),
		gen,
	)

	return svc, snapshotsRoot
}

func TestLocateBaseline_ExactPath(t *testing.T) {
	repo := newFakeSiteRepo()
	repo.baselines[1] = "snapshots/site1/baseline.png"

	svc, root := newTestService(t, repo, &fakePreviewGen{})
	writeBaseline(t, root, "snapshots/site1/baseline.png")

	b, err := svc.LocateBaseline(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, b.Found)
	assert.Equal(t, "snapshots/site1/baseline.png", b.RelPath)
	assert.Equal(t, filepath.Join(root, "snapshots/site1/baseline.png"), b.AbsPath)
	assert.Equal(t, "primary", b.Via)
}

func TestLocateBaseline_FallsBackToRenamedFile(t *testing.T) {
	repo := newFakeSiteRepo()
	repo.baselines[1] = "snapshots/site1/baseline.png"

	svc, root := newTestService(t, repo, &fakePreviewGen{})
	writeBaseline(t, root, "snapshots/site1/home.png")

	b, err := svc.LocateBaseline(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, b.Found)
	assert.Equal(t, "snapshots/site1/home.png", b.RelPath)
	assert.Equal(t, "home_png", b.Via)
}

func TestLocateBaseline_MissingFileIsNotAnError(t *testing.T) {
	repo := newFakeSiteRepo()
	repo.baselines[1] = "snapshots/site1/baseline.png"

	svc, _ := newTestService(t, repo, &fakePreviewGen{})

	b, err := svc.LocateBaseline(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, b.Found)
}

func TestLocateBaseline_UnknownSite(t *testing.T) {
	svc, _ := newTestService(t, newFakeSiteRepo(), &fakePreviewGen{})

	_, err := svc.LocateBaseline(context.Background(), 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProcessCaptureEvent_GeneratesPreviews(t *testing.T) {
	repo := newFakeSiteRepo()
	repo.baselines[1] = "snapshots/site1/baseline.png"
	gen := &fakePreviewGen{}

	svc, root := newTestService(t, repo, gen)
	writeBaseline(t, root, "snapshots/site1/baseline.png")

	evt := models.SnapshotCapturedEvent{
		SnapshotID: uuid.New(),
		SiteID:     1,
		FilePath:   "snapshots/site1/baseline.png",
	}
	require.NoError(t, svc.ProcessCaptureEvent(context.Background(), evt))

	require.Len(t, gen.generated, 1)
	assert.Equal(t, "snapshots/site1/baseline.png", gen.generated[0].BaselineRelPath)
	assert.Equal(t, []int{320}, gen.generated[0].PreviewWidths)

	// Path already matched, so no normalization write should happen.
	assert.Empty(t, repo.updates)
}

func TestProcessCaptureEvent_NormalizesStalePath(t *testing.T) {
	repo := newFakeSiteRepo()
	repo.baselines[1] = "site1/baseline.png"
	gen := &fakePreviewGen{}

	svc, root := newTestService(t, repo, gen)
	writeBaseline(t, root, "snapshots/site1/baseline.png")

	evt := models.SnapshotCapturedEvent{
		SnapshotID: uuid.New(),
		SiteID:     1,
		FilePath:   "site1/baseline.png",
	}
	require.NoError(t, svc.ProcessCaptureEvent(context.Background(), evt))

	assert.Equal(t, "snapshots/site1/baseline.png", repo.updates[1])
}

func TestProcessCaptureEvent_MissingFileFails(t *testing.T) {
	svc, _ := newTestService(t, newFakeSiteRepo(), &fakePreviewGen{})

	evt := models.SnapshotCapturedEvent{
		SnapshotID: uuid.New(),
		SiteID:     1,
		FilePath:   "snapshots/site1/baseline.png",
	}
	err := svc.ProcessCaptureEvent(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found on disk")
}

func TestProcessCaptureEvent_RejectsCorruptImage(t *testing.T) {
	repo := newFakeSiteRepo()
	repo.baselines[1] = "snapshots/site1/baseline.png"

	svc, root := newTestService(t, repo, &fakePreviewGen{})

	absPath := filepath.Join(root, "snapshots/site1/baseline.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(absPath), 0755))
	require.NoError(t, os.WriteFile(absPath, []byte("not an image"), 0644))

	evt := models.SnapshotCapturedEvent{
		SnapshotID: uuid.New(),
		SiteID:     1,
		FilePath:   "snapshots/site1/baseline.png",
	}
	err := svc.ProcessCaptureEvent(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode baseline")
}
