package grpc

import (
	"context"
	"errors"
	"sort"

	"ats-dashboard-feed/internal/mirror"
	"ats-dashboard-feed/pkg/models"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const streamBufferSize = 100

func (s *DashboardFeedServer) GetSnapshot(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}

	symbol := req.GetValue()
	if snap, ok := s.feed.GetSnapshot(symbol); ok {
		return s.snapshotReply(snap)
	}

	fallback := s.getFallback()
	if fallback == nil {
		return nil, status.Errorf(codes.NotFound, "no snapshot for %s", symbol)
	}
	snap, err := fallback.Get(ctx, symbol)
	if errors.Is(err, mirror.ErrNotMirrored) {
		return nil, status.Errorf(codes.NotFound, "no snapshot for %s", symbol)
	}
	if err != nil {
		s.logger.Warn("Snapshot fallback failed", zap.String("symbol", symbol), zap.Error(err))
		return nil, status.Errorf(codes.Unavailable, "no buffered snapshot for %s and fallback failed: %v", symbol, err)
	}
	return s.snapshotReply(snap)
}

func (s *DashboardFeedServer) GetLatest(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	snap, ok := s.feed.Latest()
	if !ok {
		return nil, status.Error(codes.NotFound, "no snapshots published yet")
	}
	return s.snapshotReply(snap)
}

func (s *DashboardFeedServer) ListSymbols(ctx context.Context, req *emptypb.Empty) (*structpb.ListValue, error) {
	symbols := s.feed.All().Symbols()
	sort.Strings(symbols)

	values := make([]*structpb.Value, len(symbols))
	for i, symbol := range symbols {
		values[i] = structpb.NewStringValue(symbol)
	}
	return &structpb.ListValue{Values: values}, nil
}

// WatchSnapshots sends the current snapshot of every requested symbol, then each
// newly published one. An empty list watches every symbol. Requested symbols the
// buffer lacks are looked up in the fallback, if one is set.
func (s *DashboardFeedServer) WatchSnapshots(req *structpb.ListValue, stream StructStream) error {
	var symbols []string
	for _, value := range req.GetValues() {
		if symbol := value.GetStringValue(); symbol != "" {
			symbols = append(symbols, symbol)
		}
	}

	subscriberID := generateSubscriberID()
	s.logger.Info("Client subscribing to snapshots",
		zap.Strings("symbols", symbols), zap.String("subscriber", subscriberID))

	subscriber := s.snapshots.Subscribe(subscriberID, symbols, streamBufferSize)
	defer s.snapshots.Unsubscribe(subscriberID)

	for _, snap := range s.initialSnapshots(stream.Context(), symbols) {
		if err := s.sendSnapshot(stream, snap); err != nil {
			return err
		}
	}

	for {
		select {
		case <-stream.Context().Done():
			s.logger.Info("Client disconnected from snapshot stream", zap.String("subscriber", subscriberID))
			return stream.Context().Err()
		case snap, ok := <-subscriber.C:
			if !ok {
				return nil
			}
			if err := s.sendSnapshot(stream, snap); err != nil {
				return err
			}
		}
	}
}

func (s *DashboardFeedServer) initialSnapshots(ctx context.Context, symbols []string) []*models.Snapshot {
	all := s.feed.All()
	if len(symbols) == 0 {
		symbols = all.Symbols()
		sort.Strings(symbols)
	}

	var missing []string
	for _, symbol := range symbols {
		if _, ok := all[symbol]; !ok {
			missing = append(missing, symbol)
		}
	}

	var mirrored models.SnapshotMap
	if fallback := s.getFallback(); fallback != nil && len(missing) > 0 {
		var err error
		mirrored, err = fallback.GetMany(ctx, missing)
		if err != nil {
			s.logger.Warn("Snapshot fallback failed", zap.Strings("symbols", missing), zap.Error(err))
		}
	}

	var snaps []*models.Snapshot
	for _, symbol := range symbols {
		if snap, ok := all[symbol]; ok {
			snaps = append(snaps, snap)
		} else if snap, ok := mirrored[symbol]; ok {
			snaps = append(snaps, snap)
		}
	}
	return snaps
}

func (s *DashboardFeedServer) sendSnapshot(stream StructStream, snap *models.Snapshot) error {
	msg, err := convertSnapshotToProto(snap)
	if err != nil {
		s.logger.Warn("Skipping unconvertible snapshot", zap.String("symbol", snap.Symbol), zap.Error(err))
		return nil
	}
	if err := stream.Send(msg); err != nil {
		s.logger.Warn("Error sending snapshot", zap.String("symbol", snap.Symbol), zap.Error(err))
		return err
	}
	return nil
}

func (s *DashboardFeedServer) snapshotReply(snap *models.Snapshot) (*structpb.Struct, error) {
	msg, err := convertSnapshotToProto(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return msg, nil
}

func (s *DashboardFeedServer) GetStats(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	stats := map[string]interface{}{
		"feed":            s.feed.Stats(),
		"snapshot_broker": s.snapshots.Stats(),
		"trigger_broker":  s.triggers.Stats(),
		"alerts":          s.store.Count(),
		"watchers":        s.watchers(),
	}

	s.mu.RLock()
	for name, fn := range s.extra {
		stats[name] = fn()
	}
	s.mu.RUnlock()

	msg, err := convertToStruct(stats)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return msg, nil
}

// watchers counts the snapshot streams that receive each explicitly watched symbol.
func (s *DashboardFeedServer) watchers() map[string]int {
	counts := make(map[string]int)
	for _, symbol := range s.snapshots.ActiveTopics() {
		counts[symbol] = s.snapshots.SubscriberCountForTopic(symbol)
	}
	return counts
}
