// Package devserver is a small coordination backend for local development
// and end-to-end tests. It serves the incident and notification RPCs over
// gRPC, keeps state in memory or Postgres and can hand out presigned S3
// upload URLs.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/devserver/auth"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"github.com/dmitrijs2005/fieldline/internal/rpc"
	"github.com/dmitrijs2005/fieldline/internal/validate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Backend stores incidents and notifications.
type Backend interface {
	ReportIncident(ctx context.Context, report models.IncidentReport, idempotencyKey string) (string, error)
	GetUnreadNotifications(ctx context.Context) ([]models.Notification, error)
	GetAllNotifications(ctx context.Context) ([]models.Notification, error)
	MarkNotificationAsRead(ctx context.Context, id string) error
	MarkAllNotificationsAsRead(ctx context.Context) error
}

type Presigner interface {
	PresignAttachmentUpload(ctx context.Context, req models.UploadRequest) (models.UploadTicket, error)
}

// Publisher adds notifications to a Backend.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) (models.Notification, error)
}

type ctxKey string

const deviceIDKey ctxKey = "deviceID"

// DeviceFromContext returns the device authenticated for the call, if any.
func DeviceFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(deviceIDKey).(string)
	return v, ok
}

type Server struct {
	address   string
	backend   Backend
	presigner Presigner
	logger    logging.Logger
	jwtSecret []byte
}

var _ rpc.CoordinationServer = (*Server)(nil)

// NewServer wires a server. An empty secretKey disables authentication.
func NewServer(address string, l logging.Logger, b Backend, p Presigner, secretKey string) *Server {
	return &Server{
		address:   address,
		backend:   b,
		presigner: p,
		logger:    l.With("module", "devserver"),
		jwtSecret: []byte(secretKey),
	}
}

func (s *Server) newGRPCServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	rpc.RegisterCoordinationServer(srv, s)
	return srv
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen[%s]: %w", s.address, err)
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis and stops gracefully once ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newGRPCServer()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		cancel()
		<-stopped
		return fmt.Errorf("grpc serve: %w", err)
	}
	<-stopped
	return nil
}

func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	args := []any{"method", info.FullMethod, "code", status.Code(err).String(), "elapsed", time.Since(start)}
	if err != nil {
		s.logger.Warn(ctx, "rpc failed", append(args, "error", err)...)
	} else {
		s.logger.Debug(ctx, "rpc", args...)
	}
	return resp, err
}

func (s *Server) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if len(s.jwtSecret) == 0 || info.FullMethod == rpc.FullMethod(rpc.MethodPing) {
		return handler(ctx, req)
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
			header = values[0]
		}
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	deviceID, err := auth.DeviceFromToken(token, s.jwtSecret)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return handler(context.WithValue(ctx, deviceIDKey, deviceID), req)
}

func (s *Server) Ping(context.Context, *rpc.Empty) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: "OK"}, nil
}

// ReportIncident prefers the idempotency key from call metadata and falls
// back to the one in the request body.
func (s *Server) ReportIncident(ctx context.Context, req *rpc.ReportIncidentRequest) (*rpc.ReportIncidentResponse, error) {
	key := req.IdempotencyKey
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.IdempotencyKeyHeaderName); len(values) > 0 && values[0] != "" {
			key = values[0]
		}
	}

	if err := validate.Struct(req.Report); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	incidentID, err := s.backend.ReportIncident(ctx, req.Report, key)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}

	s.logger.Info(ctx, "Incident reported", "incident_id", incidentID, "local_id", req.Report.LocalID, "title", req.Report.Title)
	return &rpc.ReportIncidentResponse{IncidentID: incidentID}, nil
}

func (s *Server) GetUnreadNotifications(ctx context.Context, _ *rpc.Empty) (*rpc.NotificationsResponse, error) {
	list, err := s.backend.GetUnreadNotifications(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &rpc.NotificationsResponse{Notifications: list}, nil
}

func (s *Server) GetAllNotifications(ctx context.Context, _ *rpc.Empty) (*rpc.NotificationsResponse, error) {
	list, err := s.backend.GetAllNotifications(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &rpc.NotificationsResponse{Notifications: list}, nil
}

func (s *Server) MarkNotificationAsRead(ctx context.Context, req *rpc.MarkReadRequest) (*rpc.Empty, error) {
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "notification id is required")
	}
	if err := s.backend.MarkNotificationAsRead(ctx, req.ID); err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &rpc.Empty{}, nil
}

func (s *Server) MarkAllNotificationsAsRead(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	if err := s.backend.MarkAllNotificationsAsRead(ctx); err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &rpc.Empty{}, nil
}

func (s *Server) PresignAttachmentUpload(ctx context.Context, req *rpc.PresignUploadRequest) (*rpc.PresignUploadResponse, error) {
	if s.presigner == nil {
		return nil, status.Error(codes.FailedPrecondition, "no object store configured")
	}
	ticket, err := s.presigner.PresignAttachmentUpload(ctx, models.UploadRequest{
		Key:         req.Key,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &rpc.PresignUploadResponse{UploadURL: ticket.UploadURL, Locator: ticket.Locator}, nil
}

func (s *Server) mapError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrPermanentRejection):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrRemoteUpload):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrTransientNetwork), errors.Is(err, common.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	s.logger.Error(ctx, "internal error", "error", err)
	return status.Error(codes.Internal, "internal error")
}
