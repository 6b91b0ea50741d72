package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "fieldline.v1.Coordination"

const (
	MethodPing                       = "Ping"
	MethodReportIncident             = "ReportIncident"
	MethodGetUnreadNotifications     = "GetUnreadNotifications"
	MethodGetAllNotifications        = "GetAllNotifications"
	MethodMarkNotificationAsRead     = "MarkNotificationAsRead"
	MethodMarkAllNotificationsAsRead = "MarkAllNotificationsAsRead"
	MethodPresignAttachmentUpload    = "PresignAttachmentUpload"
)

func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// CoordinationServer is implemented by backends served over gRPC.
type CoordinationServer interface {
	Ping(context.Context, *Empty) (*PingResponse, error)
	ReportIncident(context.Context, *ReportIncidentRequest) (*ReportIncidentResponse, error)
	GetUnreadNotifications(context.Context, *Empty) (*NotificationsResponse, error)
	GetAllNotifications(context.Context, *Empty) (*NotificationsResponse, error)
	MarkNotificationAsRead(context.Context, *MarkReadRequest) (*Empty, error)
	MarkAllNotificationsAsRead(context.Context, *Empty) (*Empty, error)
	PresignAttachmentUpload(context.Context, *PresignUploadRequest) (*PresignUploadResponse, error)
}

func unary[Req, Resp any](name string, call func(CoordinationServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CoordinationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CoordinationServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc registers a CoordinationServer on a *grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CoordinationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPing, CoordinationServer.Ping),
		unary(MethodReportIncident, CoordinationServer.ReportIncident),
		unary(MethodGetUnreadNotifications, CoordinationServer.GetUnreadNotifications),
		unary(MethodGetAllNotifications, CoordinationServer.GetAllNotifications),
		unary(MethodMarkNotificationAsRead, CoordinationServer.MarkNotificationAsRead),
		unary(MethodMarkAllNotificationsAsRead, CoordinationServer.MarkAllNotificationsAsRead),
		unary(MethodPresignAttachmentUpload, CoordinationServer.PresignAttachmentUpload),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fieldline/coordination",
}

func RegisterCoordinationServer(s grpc.ServiceRegistrar, srv CoordinationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// CoordinationClient is the client side of the service.
type CoordinationClient interface {
	Ping(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*PingResponse, error)
	ReportIncident(ctx context.Context, in *ReportIncidentRequest, opts ...grpc.CallOption) (*ReportIncidentResponse, error)
	GetUnreadNotifications(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*NotificationsResponse, error)
	GetAllNotifications(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*NotificationsResponse, error)
	MarkNotificationAsRead(ctx context.Context, in *MarkReadRequest, opts ...grpc.CallOption) (*Empty, error)
	MarkAllNotificationsAsRead(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error)
	PresignAttachmentUpload(ctx context.Context, in *PresignUploadRequest, opts ...grpc.CallOption) (*PresignUploadResponse, error)
}

type coordinationClient struct {
	cc grpc.ClientConnInterface
}

func NewCoordinationClient(cc grpc.ClientConnInterface) CoordinationClient {
	return &coordinationClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *coordinationClient) Ping(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}

func (c *coordinationClient) ReportIncident(ctx context.Context, in *ReportIncidentRequest, opts ...grpc.CallOption) (*ReportIncidentResponse, error) {
	return invoke[ReportIncidentResponse](ctx, c.cc, MethodReportIncident, in, opts)
}

func (c *coordinationClient) GetUnreadNotifications(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*NotificationsResponse, error) {
	return invoke[NotificationsResponse](ctx, c.cc, MethodGetUnreadNotifications, in, opts)
}

func (c *coordinationClient) GetAllNotifications(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*NotificationsResponse, error) {
	return invoke[NotificationsResponse](ctx, c.cc, MethodGetAllNotifications, in, opts)
}

func (c *coordinationClient) MarkNotificationAsRead(ctx context.Context, in *MarkReadRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodMarkNotificationAsRead, in, opts)
}

func (c *coordinationClient) MarkAllNotificationsAsRead(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodMarkAllNotificationsAsRead, in, opts)
}

func (c *coordinationClient) PresignAttachmentUpload(ctx context.Context, in *PresignUploadRequest, opts ...grpc.CallOption) (*PresignUploadResponse, error) {
	return invoke[PresignUploadResponse](ctx, c.cc, MethodPresignAttachmentUpload, in, opts)
}
