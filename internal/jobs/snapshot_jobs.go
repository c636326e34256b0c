package jobs

import (
	"context"

	"salmontrack/internal/services"

	"github.com/sirupsen/logrus"
)

// SnapshotRepublisher pushes the current state under every lot token. It repairs
// tokens whose background publish failed.
type SnapshotRepublisher struct {
	snapshots services.SnapshotService
	logger    logrus.FieldLogger
}

func NewSnapshotRepublisher(snapshots services.SnapshotService, logger logrus.FieldLogger) *SnapshotRepublisher {
	return &SnapshotRepublisher{snapshots: snapshots, logger: logger}
}

func (r *SnapshotRepublisher) Run(ctx context.Context) error {
	published, err := r.snapshots.PublishAll(ctx)
	r.logger.WithField("published", published).Info("snapshots republished")
	return err
}

// TrackingArchiver copies the snapshots of archived lots into object storage
type TrackingArchiver struct {
	archive services.ArchiveService
	logger  logrus.FieldLogger
}

func NewTrackingArchiver(archive services.ArchiveService, logger logrus.FieldLogger) *TrackingArchiver {
	return &TrackingArchiver{archive: archive, logger: logger}
}

func (a *TrackingArchiver) Run(ctx context.Context) error {
	archived, err := a.archive.ArchiveDelivered(ctx)
	a.logger.WithField("archived", archived).Info("tracking snapshots archived")
	return err
}
