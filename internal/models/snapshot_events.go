package models

import (
	"github.com/google/uuid"
)

// SnapshotCapturedEvent is published by the capture workers whenever a
// new baseline screenshot for a monitored site lands on disk.
type SnapshotCapturedEvent struct {
	SnapshotID uuid.UUID `json:"snapshotId"`
	SiteID     int64     `json:"siteId"`

	// Path to the captured baseline image, relative to env
	// variable 'DIR_SNAPSHOTS_ROOT'
	FilePath string `json:"filePath"`
}
