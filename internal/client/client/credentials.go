package client

import (
	"context"

	"github.com/dmitrijs2005/fieldline/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

type bearerToken string

func (t bearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{common.AuthorizationHeaderName: "Bearer " + string(t)}, nil
}

// RequireTransportSecurity is false so the token also works against a
// plaintext development server.
func (bearerToken) RequireTransportSecurity() bool { return false }

var _ credentials.PerRPCCredentials = bearerToken("")

// WithAccessToken attaches token to every call.
func WithAccessToken(token string) grpc.DialOption {
	return grpc.WithPerRPCCredentials(bearerToken(token))
}
