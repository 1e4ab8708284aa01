package interceptor

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"reseller-ledger/internal/config"
	"reseller-ledger/internal/security"
)

type AuthInterceptor struct {
	tokenManager security.TokenManager
}

func NewAuthInterceptor(tm security.TokenManager) *AuthInterceptor {
	return &AuthInterceptor{tokenManager: tm}
}

// Unary authenticates unary RPCs against config.EndpointSecurityConfig,
// keyed by full method name.
func (i *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := i.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream applies the same rules to streaming RPCs such as Health/Watch.
func (i *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := i.authorize(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

// authorize returns ctx with the caller identity in incoming metadata.
// Client supplied user-id and user-role values are overwritten.
func (i *AuthInterceptor) authorize(ctx context.Context, method string) (context.Context, error) {
	level := config.GetSecurityLevel(method)
	if level == config.SecurityPublic {
		return ctx, nil
	}

	md, _ := metadata.FromIncomingContext(ctx)
	token, ok := bearer(md.Get("authorization"))
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authorization token is not provided")
	}
	claims, err := i.tokenManager.ValidateToken(token)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}
	if level == config.SecurityAdmin && !claims.Role.IsAdmin() {
		return nil, status.Error(codes.PermissionDenied, "admin role required")
	}

	md = md.Copy()
	md.Set("user-id", strconv.FormatInt(claims.UserID, 10))
	md.Set("user-role", string(claims.Role))
	return metadata.NewIncomingContext(ctx, md), nil
}

func bearer(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	token := strings.TrimSpace(values[0])
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token, token != ""
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }
