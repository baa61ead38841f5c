package previews

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/discord/lilliput"

	"github.com/sitewatch/snapshotd/internal/telemetry"
	"github.com/sitewatch/snapshotd/internal/telemetry/metrics"
)

// Max size in bytes of a single encoded preview.
const resizeBufferSize = 20 * 1024 * 1024

type LilliputPreviewGenerator struct {
	telemetry *telemetry.TelemetrySvc
}

func NewLilliputPreviewGenerator(
	telemetry *telemetry.TelemetrySvc,
) *LilliputPreviewGenerator {

	return &LilliputPreviewGenerator{
		telemetry: telemetry,
	}
}

func (g *LilliputPreviewGenerator) Generate(
	ctx context.Context,
	meta PreviewMeta,
) error {
	slog.Debug(
		"Generating previews",
		"baseline",
		meta.BaselineRelPath,
	)

	baselineAbsPath := filepath.Join(
		meta.SnapshotsRootDir,
		meta.BaselineRelPath,
	)

	inputBuf, err := os.ReadFile(baselineAbsPath)
	if err != nil {
		return fmt.Errorf(
			"failed to read baseline file %s: %w",
			baselineAbsPath,
			err,
		)
	}

	origWidth, origHeight, err := g.dimensions(meta.BaselineRelPath, inputBuf)
	if err != nil {
		return err
	}

	ops := lilliput.NewImageOps(int(float64(origWidth) * 1.5))
	defer ops.Close()

	resizeBuffer := make([]byte, resizeBufferSize)

	// All preview files share the same base name
	fileBaseName := filepath.Base(meta.BaselineRelPath)
	fileBaseNameNoExt := strings.TrimSuffix(
		fileBaseName,
		filepath.Ext(fileBaseName),
	)

	for _, tgtWidth := range meta.PreviewWidths {
		select {
		case <-ctx.Done():
			slog.Warn("Context cancelled during preview generation")
			return ctx.Err()
		default:
			// Continue processing
		}

		// lilliput decoders are single-use, so each width decodes
		// the input buffer again.
		decoder, err := lilliput.NewDecoder(inputBuf)
		if err != nil {
			return fmt.Errorf(
				"failed to create decoder for %s: %w",
				meta.BaselineRelPath,
				err,
			)
		}

		tgtHeight := (origHeight * tgtWidth) / origWidth
		opts := &lilliput.ImageOptions{
			FileType:             PreviewExtension,
			Width:                tgtWidth,
			Height:               tgtHeight,
			ResizeMethod:         lilliput.ImageOpsFit,
			NormalizeOrientation: true,
			EncodeOptions: map[int]int{
				lilliput.JpegQuality: PreviewQuality,
			},
		}

		resizedBuf, err := ops.Transform(decoder, opts, resizeBuffer)
		decoder.Close()
		if err != nil {
			return fmt.Errorf(
				"failed to create preview for %s: %w",
				meta.BaselineRelPath,
				err,
			)
		}

		previewFileName := fmt.Sprintf(
			"%s_%dpx%s",
			fileBaseNameNoExt,
			tgtWidth,
			PreviewExtension,
		)
		previewAbsPath := filepath.Join(meta.PreviewAbsDir, previewFileName)

		if err := os.WriteFile(previewAbsPath, resizedBuf, 0644); err != nil {
			return fmt.Errorf(
				"failed to write preview file %s: %w",
				previewAbsPath,
				err,
			)
		}

		g.telemetry.Metrics().Increment(
			metrics.PreviewCreated,
			map[string]string{
				"baseline":     meta.BaselineRelPath,
				"previewWidth": fmt.Sprintf("%d", tgtWidth),
			},
		)
	}

	return nil
}

func (g *LilliputPreviewGenerator) dimensions(
	fileRelPath string,
	inputBuf []byte,
) (int, int, error) {
	decoder, err := lilliput.NewDecoder(inputBuf)
	if err != nil {
		return 0, 0, fmt.Errorf(
			"failed to create decoder for %s: %w",
			fileRelPath,
			err,
		)
	}
	defer decoder.Close()

	imgHeader, err := decoder.Header()
	if err != nil {
		return 0, 0, fmt.Errorf(
			"failed to read image header for %s: %w",
			fileRelPath,
			err,
		)
	}

	origWidth := imgHeader.Width()
	origHeight := imgHeader.Height()
	if origWidth == 0 || origHeight == 0 {
		return 0, 0, fmt.Errorf(
			"invalid baseline image dimensions: width=%d, height=%d",
			origWidth,
			origHeight,
		)
	}

	return origWidth, origHeight, nil
}
