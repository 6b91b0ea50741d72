package client

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// DefaultCallTimeout bounds calls whose context carries no deadline.
const DefaultCallTimeout = 15 * time.Second

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      rpc.CoordinationClient
	callTimeout time.Duration
}

func withIdempotencyKey(ctx context.Context, key string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.IdempotencyKeyHeaderName, key)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) timeoutInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if _, ok := ctx.Deadline(); !ok && s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient creates a lazily connecting client for endpointURL. Extra
// dial options are appended after the defaults (tests pass a bufconn
// dialer).
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, callTimeout: DefaultCallTimeout}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.timeoutInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client[%s]: %w", endpointURL, err)
	}
	c.conn = conn
	c.client = rpc.NewCoordinationClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &rpc.Empty{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return fmt.Errorf("ping status %q: %w", resp.Status, common.ErrTransientNetwork)
	}
	return nil
}

func (s *GRPCClient) ReportIncident(ctx context.Context, report models.IncidentReport, idempotencyKey string) (string, error) {
	ctx = withIdempotencyKey(ctx, idempotencyKey)

	req := &rpc.ReportIncidentRequest{IdempotencyKey: idempotencyKey, Report: report}
	resp, err := s.client.ReportIncident(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.IncidentID, nil
}

func (s *GRPCClient) GetUnreadNotifications(ctx context.Context) ([]models.Notification, error) {
	resp, err := s.client.GetUnreadNotifications(ctx, &rpc.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Notifications, nil
}

func (s *GRPCClient) GetAllNotifications(ctx context.Context) ([]models.Notification, error) {
	resp, err := s.client.GetAllNotifications(ctx, &rpc.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Notifications, nil
}

func (s *GRPCClient) MarkNotificationAsRead(ctx context.Context, id string) error {
	if _, err := s.client.MarkNotificationAsRead(ctx, &rpc.MarkReadRequest{ID: id}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) MarkAllNotificationsAsRead(ctx context.Context) error {
	if _, err := s.client.MarkAllNotificationsAsRead(ctx, &rpc.Empty{}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) PresignAttachmentUpload(ctx context.Context, req models.UploadRequest) (models.UploadTicket, error) {
	resp, err := s.client.PresignAttachmentUpload(ctx, &rpc.PresignUploadRequest{
		Key:         req.Key,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		return models.UploadTicket{}, s.mapError(err)
	}
	return models.UploadTicket{UploadURL: resp.UploadURL, Locator: resp.Locator}, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition, codes.AlreadyExists, codes.OutOfRange, codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrPermanentRejection, st.Message())
	default:
		return fmt.Errorf("%w: rpc error: %w", common.ErrTransientNetwork, err)
	}
}
