package grpc

import (
	"context"
	"errors"

	"ats-dashboard-feed/internal/alerts"
	"ats-dashboard-feed/pkg/models"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *DashboardFeedServer) CreateAlert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	comparator := models.ParseComparator(fields["comparator"].GetStringValue())
	if comparator == models.ComparatorUnspecified {
		return nil, status.Error(codes.InvalidArgument, "invalid comparator")
	}

	alert := models.NewAlert(
		fields["symbol"].GetStringValue(),
		fields["field"].GetStringValue(),
		comparator,
		fields["threshold"].GetNumberValue(),
		fields["note"].GetStringValue(),
	)

	if err := s.store.Create(alert); err != nil {
		if errors.Is(err, alerts.ErrInvalidAlert) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error("Error creating alert", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to create alert")
	}

	s.logger.Info("Created alert",
		zap.String("id", alert.ID),
		zap.String("symbol", alert.Symbol),
		zap.String("field", alert.Field),
		zap.Stringer("comparator", alert.Comparator),
		zap.Float64("threshold", alert.Threshold))

	return convertAlertToProto(alert), nil
}

func (s *DashboardFeedServer) ListAlerts(ctx context.Context, req *emptypb.Empty) (*structpb.ListValue, error) {
	list := s.store.List()

	values := make([]*structpb.Value, len(list))
	for i, alert := range list {
		values[i] = structpb.NewStructValue(convertAlertToProto(alert))
	}
	return &structpb.ListValue{Values: values}, nil
}

func (s *DashboardFeedServer) SetAlertEnabled(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "alert ID is required")
	}

	alert, err := s.store.SetEnabled(id, req.GetFields()["enabled"].GetBoolValue())
	if err != nil {
		return nil, alertError(err)
	}

	s.logger.Info("Updated alert", zap.String("id", id), zap.Bool("enabled", alert.Enabled))
	return convertAlertToProto(alert), nil
}

func (s *DashboardFeedServer) DeleteAlert(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "alert ID is required")
	}

	if err := s.store.Delete(req.GetValue()); err != nil {
		return nil, alertError(err)
	}

	s.logger.Info("Deleted alert", zap.String("id", req.GetValue()))
	return &emptypb.Empty{}, nil
}

func (s *DashboardFeedServer) WatchAlerts(req *emptypb.Empty, stream StructStream) error {
	subscriberID := generateSubscriberID()
	s.logger.Info("Client subscribing to alert triggers", zap.String("subscriber", subscriberID))

	subscriber := s.triggers.Subscribe(subscriberID, nil, streamBufferSize)
	defer s.triggers.Unsubscribe(subscriberID)

	for {
		select {
		case <-stream.Context().Done():
			s.logger.Info("Client disconnected from alert stream", zap.String("subscriber", subscriberID))
			return stream.Context().Err()
		case trigger, ok := <-subscriber.C:
			if !ok {
				return nil
			}
			if err := stream.Send(convertAlertTriggerToProto(trigger)); err != nil {
				s.logger.Warn("Error sending alert trigger", zap.String("subscriber", subscriberID), zap.Error(err))
				return err
			}
		}
	}
}

func alertError(err error) error {
	if errors.Is(err, alerts.ErrAlertNotFound) {
		return status.Error(codes.NotFound, "alert not found")
	}
	return status.Error(codes.Internal, err.Error())
}
