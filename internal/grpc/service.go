// Package grpc serves the buffered dashboard feed and its alerts to renderers
// over the atsfeed.v1.DashboardFeed service.
package grpc

import (
	"context"
	"sync"

	"ats-dashboard-feed/internal/alerts"
	"ats-dashboard-feed/internal/feedbuffer"
	"ats-dashboard-feed/internal/pubsub"
	"ats-dashboard-feed/pkg/models"

	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "atsfeed.v1.DashboardFeed"

// DashboardFeedService is the server API of atsfeed.v1.DashboardFeed.
type DashboardFeedService interface {
	GetSnapshot(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetLatest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListSymbols(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	WatchSnapshots(*structpb.ListValue, StructStream) error
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CreateAlert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAlerts(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	SetAlertEnabled(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAlert(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	WatchAlerts(*emptypb.Empty, StructStream) error
}

// StructStream is the server side of a streaming method.
type StructStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

type structStream struct {
	gogrpc.ServerStream
}

func (s *structStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

// SnapshotSource is the read side of the feed buffer.
type SnapshotSource interface {
	GetSnapshot(symbol string) (*models.Snapshot, bool)
	Latest() (*models.Snapshot, bool)
	All() models.SnapshotMap
	Stats() feedbuffer.Stats
}

// SnapshotFallback answers for symbols the feed buffer has not received yet,
// such as snapshots mirrored to Redis by an earlier run.
type SnapshotFallback interface {
	Get(ctx context.Context, symbol string) (*models.Snapshot, error)
	GetMany(ctx context.Context, symbols []string) (models.SnapshotMap, error)
}

// DashboardFeedServer implements DashboardFeedService.
type DashboardFeedServer struct {
	feed      SnapshotSource
	snapshots *pubsub.Broker[*models.Snapshot]
	store     *alerts.Store
	triggers  *pubsub.Broker[*models.AlertTrigger]
	logger    *zap.Logger

	mu       sync.RWMutex
	extra    map[string]func() interface{}
	fallback SnapshotFallback
}

var _ DashboardFeedService = (*DashboardFeedServer)(nil)

// NewDashboardFeedServer creates a new gRPC service over the feed buffer and alert store
func NewDashboardFeedServer(
	feed SnapshotSource,
	snapshots *pubsub.Broker[*models.Snapshot],
	store *alerts.Store,
	triggers *pubsub.Broker[*models.AlertTrigger],
	logger *zap.Logger,
) *DashboardFeedServer {
	return &DashboardFeedServer{
		feed:      feed,
		snapshots: snapshots,
		store:     store,
		triggers:  triggers,
		logger:    logger.Named("grpc"),
		extra:     make(map[string]func() interface{}),
	}
}

// AddStats adds a section to the GetStats reply. fn must return a JSON-encodable value.
func (s *DashboardFeedServer) AddStats(name string, fn func() interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra[name] = fn
}

// SetFallback makes GetSnapshot and WatchSnapshots consult fallback for symbols
// missing from the feed buffer.
func (s *DashboardFeedServer) SetFallback(fallback SnapshotFallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = fallback
}

func (s *DashboardFeedServer) getFallback() SnapshotFallback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback
}

func RegisterDashboardFeedServer(registrar gogrpc.ServiceRegistrar, srv DashboardFeedService) {
	registrar.RegisterService(&DashboardFeedServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unaryHandler[Req, Resp proto.Message](
	name string,
	newReq func() Req,
	call func(DashboardFeedService, context.Context, Req) (Resp, error),
) gogrpc.MethodDesc {
	return gogrpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor gogrpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DashboardFeedService), ctx, in)
			}
			info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(DashboardFeedService), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func streamHandler[Req proto.Message](
	name string,
	newReq func() Req,
	call func(DashboardFeedService, Req, StructStream) error,
) gogrpc.StreamDesc {
	return gogrpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv interface{}, stream gogrpc.ServerStream) error {
			in := newReq()
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(DashboardFeedService), in, &structStream{stream})
		},
	}
}

func newEmpty() *emptypb.Empty                { return &emptypb.Empty{} }
func newStringValue() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newStruct() *structpb.Struct             { return &structpb.Struct{} }
func newListValue() *structpb.ListValue       { return &structpb.ListValue{} }

var DashboardFeedServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DashboardFeedService)(nil),
	Methods: []gogrpc.MethodDesc{
		unaryHandler("GetSnapshot", newStringValue, DashboardFeedService.GetSnapshot),
		unaryHandler("GetLatest", newEmpty, DashboardFeedService.GetLatest),
		unaryHandler("ListSymbols", newEmpty, DashboardFeedService.ListSymbols),
		unaryHandler("GetStats", newEmpty, DashboardFeedService.GetStats),
		unaryHandler("CreateAlert", newStruct, DashboardFeedService.CreateAlert),
		unaryHandler("ListAlerts", newEmpty, DashboardFeedService.ListAlerts),
		unaryHandler("SetAlertEnabled", newStruct, DashboardFeedService.SetAlertEnabled),
		unaryHandler("DeleteAlert", newStringValue, DashboardFeedService.DeleteAlert),
	},
	Streams: []gogrpc.StreamDesc{
		streamHandler("WatchSnapshots", newListValue, DashboardFeedService.WatchSnapshots),
		streamHandler("WatchAlerts", newEmpty, DashboardFeedService.WatchAlerts),
	},
	Metadata: "atsfeed/v1/dashboard_feed.proto",
}
