package catgenie

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// StatusPublisher receives every fresh snapshot.
type StatusPublisher interface {
	PublishStatus(deviceID string, v any) error
}

// SnapshotArchive keeps the latest snapshot per device.
type SnapshotArchive interface {
	SaveLatest(ctx context.Context, deviceID string, v any) error
}

// AttachPublisher forwards snapshots to pub after every successful tick.
func AttachPublisher(coord *Coordinator, pub StatusPublisher, logger zerolog.Logger) func() {
	log := logger.With().Str("component", "catgenie_events").Logger()
	return coord.AddListener(func() {
		if !coord.LastUpdateSuccess() {
			return
		}
		data, _ := coord.Data()
		for id, snapshot := range data {
			if err := pub.PublishStatus(id, snapshot); err != nil {
				log.Warn().Err(err).Str("device", id).Msg("publish snapshot failed")
			}
		}
	})
}

// AttachArchive stores snapshots after every successful tick.
func AttachArchive(coord *Coordinator, archive SnapshotArchive, logger zerolog.Logger) func() {
	log := logger.With().Str("component", "catgenie_archive").Logger()
	return coord.AddListener(func() {
		if !coord.LastUpdateSuccess() {
			return
		}
		data, _ := coord.Data()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		for id, snapshot := range data {
			if err := archive.SaveLatest(ctx, id, snapshot); err != nil {
				log.Warn().Err(err).Str("device", id).Msg("archive snapshot failed")
			}
		}
	})
}
