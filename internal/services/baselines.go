package services

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format
	_ "image/jpeg" // Register JPEG format
	_ "image/png"  // Register PNG format
	"log/slog"
	"os"
	"path/filepath"

	_ "golang.org/x/image/webp" // Register WebP format

	"github.com/sitewatch/snapshotd/internal/models"
	"github.com/sitewatch/snapshotd/internal/previews"
	"github.com/sitewatch/snapshotd/internal/repository"
	"github.com/sitewatch/snapshotd/internal/resolver"
)

type BaselinesConfig struct {
	DirSnapshotsRoot string
	DirPreviewsRoot  string
	PreviewWidths    []int
}

// BaselinesService ties the persisted baseline records to the files that
// actually exist on disk: it locates baselines for the HTTP layer and
// repairs stale records when capture events arrive.
type BaselinesService struct {
	config       BaselinesConfig
	sites        repository.SiteRepository
	pathResolver *resolver.BaselineResolver
	previewsGen  previews.Generator
}

func NewBaselinesService(
	config BaselinesConfig,
	sites repository.SiteRepository,
	pathResolver *resolver.BaselineResolver,
	previewsGen previews.Generator,
) *BaselinesService {
	return &BaselinesService{
		config:       config,
		sites:        sites,
		pathResolver: pathResolver,
		previewsGen:  previewsGen,
	}
}

// Baseline is what the HTTP layer needs to serve a baseline image.
type Baseline struct {

	// AbsPath is the physical location of the image on disk.
	AbsPath string

	// RelPath is the resolved path relative to the snapshots root.
	RelPath string

	// Via names the resolution step that located the file.
	Via string

	// Found reports whether any candidate path exists. A missing
	// baseline is a normal outcome (new sites have none yet); the
	// caller decides the user-visible fallback.
	Found bool
}

// LocateBaseline maps a site to the physical location of its baseline
// screenshot. Returns repository.ErrNotFound when the site is unknown or
// has no baseline recorded.
func (s *BaselinesService) LocateBaseline(
	ctx context.Context,
	siteID int64,
) (Baseline, error) {
	logicalPath, err := s.sites.GetBaselinePath(ctx, siteID)
	if err != nil {
		return Baseline{}, err
	}

	res, err := s.pathResolver.Resolve(logicalPath)
	if err != nil {
		return Baseline{}, fmt.Errorf(
			"failed to resolve baseline for site %d: %w",
			siteID,
			err,
		)
	}

	if !res.Found {
		return Baseline{}, nil
	}

	return Baseline{
		AbsPath: filepath.Join(s.config.DirSnapshotsRoot, res.Path),
		RelPath: res.Path,
		Via:     res.Via,
		Found:   true,
	}, nil
}

// ProcessCaptureEvent handles a freshly captured snapshot: it repairs the
// stored baseline path when it no longer matches the file location on
// disk, then generates dashboard previews.
func (s *BaselinesService) ProcessCaptureEvent(
	ctx context.Context,
	evt models.SnapshotCapturedEvent,
) error {
	slog.Debug(
		"Processing snapshot captured event",
		"snapshotId", evt.SnapshotID,
		"siteId", evt.SiteID,
		"filePath", evt.FilePath,
	)

	res, err := s.pathResolver.Resolve(evt.FilePath)
	if err != nil {
		return err
	}
	if !res.Found {
		return fmt.Errorf(
			"captured baseline %s not found on disk",
			evt.FilePath,
		)
	}

	// Normalize at write time so read-time fallbacks stay the
	// exception rather than the rule.
	if res.Path != evt.FilePath {
		if err := s.sites.UpdateBaselinePath(ctx, evt.SiteID, res.Path); err != nil {
			return fmt.Errorf(
				"failed to normalize baseline path for site %d: %w",
				evt.SiteID,
				err,
			)
		}

		slog.Info(
			"Normalized stale baseline path",
			"siteId", evt.SiteID,
			"from", evt.FilePath,
			"to", res.Path,
		)
	}

	if err := s.probeImage(res.Path); err != nil {
		return err
	}

	meta, err := s.preparePreviewMeta(res.Path)
	if err != nil {
		return err
	}

	return s.previewsGen.Generate(ctx, *meta)
}

// probeImage verifies the baseline decodes as an image before any preview
// work happens, so corrupt captures are rejected early.
func (s *BaselinesService) probeImage(baselineRelPath string) error {
	absPath := filepath.Join(s.config.DirSnapshotsRoot, baselineRelPath)

	f, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf(
			"failed to open baseline %s: %w",
			baselineRelPath,
			err,
		)
	}
	defer f.Close()

	imgConfig, format, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf(
			"failed to decode baseline %s: %w",
			baselineRelPath,
			err,
		)
	}

	if imgConfig.Width == 0 || imgConfig.Height == 0 {
		return fmt.Errorf(
			"invalid baseline dimensions for %s: width=%d, height=%d",
			baselineRelPath,
			imgConfig.Width,
			imgConfig.Height,
		)
	}

	slog.Debug(
		"Probed baseline image",
		"path", baselineRelPath,
		"format", format,
		"width", imgConfig.Width,
		"height", imgConfig.Height,
	)

	return nil
}

func (s *BaselinesService) preparePreviewMeta(
	baselineRelPath string,
) (*previews.PreviewMeta, error) {
	meta := new(previews.PreviewMeta)
	meta.SnapshotsRootDir = s.config.DirSnapshotsRoot
	meta.BaselineRelPath = baselineRelPath

	// Previews mirror the baseline's directory under the previews root
	baselineRelDir := filepath.Dir(baselineRelPath)
	meta.PreviewAbsDir = filepath.Join(
		s.config.DirPreviewsRoot,
		baselineRelDir,
	)

	if _, err := os.Stat(meta.PreviewAbsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(meta.PreviewAbsDir, 0755); err != nil {
			return nil, fmt.Errorf(
				"failed to create previews directory %s: %w",
				meta.PreviewAbsDir,
				err,
			)
		}
	}

	meta.PreviewWidths = s.config.PreviewWidths
	return meta, nil
}
