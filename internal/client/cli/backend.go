package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/AlibekovAA/safecheck/internal/client/api"
	"github.com/AlibekovAA/safecheck/internal/client/store"
	"github.com/AlibekovAA/safecheck/internal/common/clock"
	"github.com/AlibekovAA/safecheck/internal/common/dto"
	"github.com/AlibekovAA/safecheck/internal/view"
)

type ownerBackend struct {
	client *api.Client
}

func (b ownerBackend) GetRecordByIdentity(ctx context.Context, identity string) (view.Snapshot, error) {
	rec, err := b.client.GetRecordByIdentity(ctx, identity)
	if err != nil {
		return view.Snapshot{}, err
	}
	return snapshotFromOwner(rec), nil
}

func (b ownerBackend) CheckIn(ctx context.Context, identity string) (view.CheckInConfirmation, error) {
	res, err := b.client.CheckIn(ctx, identity)
	if err != nil {
		return view.CheckInConfirmation{}, err
	}
	return view.CheckInConfirmation{Timestamp: res.Timestamp, Version: res.Version}, nil
}

func (b ownerBackend) UpdateThreshold(ctx context.Context, identity string, seconds int) (view.ThresholdConfirmation, error) {
	res, err := b.client.UpdateThreshold(ctx, identity, seconds)
	if err != nil {
		return view.ThresholdConfirmation{}, err
	}
	return view.ThresholdConfirmation{TimeoutThreshold: res.TimeoutThreshold, Version: res.Version}, nil
}

// publicBackend also remembers every good snapshot so that `status` can show
// the last known state while the server is unreachable.
type publicBackend struct {
	client *api.Client
	cache  *store.SnapshotRepository
	clock  clock.Clock
	log    *zap.Logger
}

func (b publicBackend) GetRecordByUsername(ctx context.Context, username string) (view.Snapshot, error) {
	st, err := b.client.GetRecordByUsername(ctx, username)
	if err != nil {
		return view.Snapshot{}, err
	}
	snap := snapshotFromPublic(st)
	b.remember(ctx, snap)
	return snap, nil
}

func (b publicBackend) SubscribeToChanges(ctx context.Context, username string, onChange func(view.Snapshot)) (view.Subscription, error) {
	sub, err := b.client.SubscribeToChanges(ctx, username, func(st dto.PublicStatus) {
		snap := snapshotFromPublic(st)
		b.remember(context.Background(), snap)
		onChange(snap)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (b publicBackend) remember(ctx context.Context, snap view.Snapshot) {
	if b.cache == nil {
		return
	}
	if err := b.cache.Save(ctx, snap, b.clock.Now()); err != nil {
		b.log.Warn("failed to cache status", zap.String("username", snap.Username), zap.Error(err))
	}
}

func snapshotFromOwner(rec dto.OwnerRecord) view.Snapshot {
	return view.Snapshot{
		Username:         rec.Username,
		DisplayName:      rec.DisplayName,
		LastCheckInAt:    rec.LastCheckInAt,
		TimeoutThreshold: rec.TimeoutThreshold,
		Version:          rec.Version,
		CreatedAt:        rec.CreatedAt,
		ServerTime:       rec.ServerTime,
	}
}

func snapshotFromPublic(st dto.PublicStatus) view.Snapshot {
	return view.Snapshot{
		Username:         st.Username,
		DisplayName:      st.DisplayName,
		LastCheckInAt:    st.LastCheckInAt,
		TimeoutThreshold: st.TimeoutThreshold,
		Version:          st.Version,
		ServerTime:       st.ServerTime,
	}
}
