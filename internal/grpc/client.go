package grpc

import (
	"context"
	"errors"
	"io"

	"ats-dashboard-feed/pkg/models"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls atsfeed.v1.DashboardFeed and decodes replies into model types.
type Client struct {
	cc gogrpc.ClientConnInterface
}

// NewClient creates a new dashboard feed client over cc
func NewClient(cc gogrpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetSnapshot(ctx context.Context, symbol string) (*models.Snapshot, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod("GetSnapshot"), wrapperspb.String(symbol), out); err != nil {
		return nil, err
	}
	return convertSnapshotFromProto(out)
}

func (c *Client) GetLatest(ctx context.Context) (*models.Snapshot, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod("GetLatest"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return convertSnapshotFromProto(out)
}

func (c *Client) ListSymbols(ctx context.Context) ([]string, error) {
	out := &structpb.ListValue{}
	if err := c.cc.Invoke(ctx, fullMethod("ListSymbols"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(out.GetValues()))
	for _, value := range out.GetValues() {
		symbols = append(symbols, value.GetStringValue())
	}
	return symbols, nil
}

// GetStats returns the server's stats sections as plain JSON values.
func (c *Client) GetStats(ctx context.Context) (map[string]interface{}, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod("GetStats"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) CreateAlert(ctx context.Context, symbol, field string, comparator models.Comparator, threshold float64, note string) (*models.Alert, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"symbol":     structpb.NewStringValue(symbol),
		"field":      structpb.NewStringValue(field),
		"comparator": structpb.NewStringValue(comparator.String()),
		"threshold":  structpb.NewNumberValue(threshold),
		"note":       structpb.NewStringValue(note),
	}}

	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod("CreateAlert"), in, out); err != nil {
		return nil, err
	}
	return convertAlertFromProto(out), nil
}

func (c *Client) ListAlerts(ctx context.Context) ([]*models.Alert, error) {
	out := &structpb.ListValue{}
	if err := c.cc.Invoke(ctx, fullMethod("ListAlerts"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	list := make([]*models.Alert, 0, len(out.GetValues()))
	for _, value := range out.GetValues() {
		list = append(list, convertAlertFromProto(value.GetStructValue()))
	}
	return list, nil
}

func (c *Client) SetAlertEnabled(ctx context.Context, id string, enabled bool) (*models.Alert, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":      structpb.NewStringValue(id),
		"enabled": structpb.NewBoolValue(enabled),
	}}

	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod("SetAlertEnabled"), in, out); err != nil {
		return nil, err
	}
	return convertAlertFromProto(out), nil
}

func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	return c.cc.Invoke(ctx, fullMethod("DeleteAlert"), wrapperspb.String(id), &emptypb.Empty{})
}

// WatchSnapshots calls fn for every snapshot streamed for symbols until ctx is
// done, the server ends the stream, or fn returns an error.
func (c *Client) WatchSnapshots(ctx context.Context, symbols []string, fn func(*models.Snapshot) error) error {
	values := make([]*structpb.Value, len(symbols))
	for i, symbol := range symbols {
		values[i] = structpb.NewStringValue(symbol)
	}

	return c.watch(ctx, &DashboardFeedServiceDesc.Streams[0], &structpb.ListValue{Values: values}, func(msg *structpb.Struct) error {
		snap, err := convertSnapshotFromProto(msg)
		if err != nil {
			return err
		}
		return fn(snap)
	})
}

func (c *Client) WatchAlerts(ctx context.Context, fn func(*models.AlertTrigger) error) error {
	return c.watch(ctx, &DashboardFeedServiceDesc.Streams[1], &emptypb.Empty{}, func(msg *structpb.Struct) error {
		return fn(convertAlertTriggerFromProto(msg))
	})
}

func (c *Client) watch(ctx context.Context, desc *gogrpc.StreamDesc, in interface{}, fn func(*structpb.Struct) error) error {
	stream, err := c.cc.NewStream(ctx, desc, fullMethod(desc.StreamName))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg := &structpb.Struct{}
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
