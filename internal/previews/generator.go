package previews

import (
	"context"
)

const PreviewExtension = ".jpg"
const PreviewQuality = 60

// PreviewMeta holds all the necessary metadata for generating dashboard
// previews of a single baseline screenshot.
type PreviewMeta struct {

	// Absolute path to the root directory where all baseline
	// screenshots are stored. Baselines live in per-site
	// subdirectories inside it.
	SnapshotsRootDir string

	// Path to the baseline image, relative to SnapshotsRootDir.
	BaselineRelPath string

	// Absolute path to the directory where preview files should be
	// written.
	PreviewAbsDir string

	// Widths in pixels of the previews to generate. For example
	// [320, 640] produces one 320px wide and one 640px wide preview.
	PreviewWidths []int
}

type Generator interface {
	Generate(ctx context.Context, meta PreviewMeta) error
}
