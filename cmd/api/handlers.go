package main

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/pawchat/internal/auth"
	"github.com/PaulBabatuyi/pawchat/internal/chat"
	"github.com/PaulBabatuyi/pawchat/internal/chatrpc"
	"github.com/PaulBabatuyi/pawchat/internal/data"
	"github.com/PaulBabatuyi/pawchat/internal/gateway"
)

var grpcCodes = map[string]codes.Code{
	gateway.CodeUnauthorized:         codes.Unauthenticated,
	gateway.CodeNotAParticipant:      codes.PermissionDenied,
	gateway.CodeConversationNotFound: codes.NotFound,
	gateway.CodeUserNotFound:         codes.NotFound,
	gateway.CodeEmptyMessage:         codes.InvalidArgument,
	gateway.CodeMessageTooLong:       codes.InvalidArgument,
	gateway.CodeInvalidParticipant:   codes.InvalidArgument,
	gateway.CodeInvalidAccount:       codes.InvalidArgument,
	gateway.CodeBadRequest:           codes.InvalidArgument,
	gateway.CodeUserExists:           codes.AlreadyExists,
	gateway.CodeRateLimited:          codes.ResourceExhausted,
	gateway.CodeConnectionLost:       codes.Unavailable,
	gateway.CodeShuttingDown:         codes.Unavailable,
}

// toStatus converts a domain error into a gRPC status error.
func (s *Server) toStatus(method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code, ok := grpcCodes[gateway.ErrorCode(err)]
	if !ok {
		s.logger.Error("request failed", zap.String("method", method), zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

func caller(ctx context.Context) (string, error) {
	claims, ok := auth.FromContext(ctx)
	if !ok {
		return "", status.Errorf(codes.Unauthenticated, "missing auth claims")
	}
	return claims.UserID, nil
}

// Register handles user registration and returns a token.
func (s *Server) Register(ctx context.Context, req *chatrpc.RegisterRequest) (*chatrpc.AuthResponse, error) {
	res, err := s.chat.Register(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		return nil, s.toStatus("Register", err)
	}
	return &chatrpc.AuthResponse{Token: res.Token, UserID: res.UserID, ExpiresAt: res.ExpiresAt}, nil
}

// Login authenticates a user and returns a token.
func (s *Server) Login(ctx context.Context, req *chatrpc.LoginRequest) (*chatrpc.AuthResponse, error) {
	res, err := s.chat.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus("Login", err)
	}
	return &chatrpc.AuthResponse{Token: res.Token, UserID: res.UserID, ExpiresAt: res.ExpiresAt}, nil
}

// OpenConversation finds or creates the caller's conversation with a participant.
func (s *Server) OpenConversation(ctx context.Context, req *chatrpc.OpenConversationRequest) (*chat.ConversationView, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	view, err := s.chat.Open(ctx, userID, req.ParticipantID, req.ListingID)
	if err != nil {
		return nil, s.toStatus("OpenConversation", err)
	}
	return view, nil
}

// MarkRead clears the caller's unread count for a conversation.
func (s *Server) MarkRead(ctx context.Context, req *chatrpc.ConversationRequest) (*chatrpc.MarkReadResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	changed, err := s.gateway.MarkRead(ctx, userID, req.ConversationID)
	if err != nil {
		return nil, s.toStatus("MarkRead", err)
	}
	snap, err := s.chat.Unread(ctx, userID)
	if err != nil {
		return nil, s.toStatus("MarkRead", err)
	}
	return &chatrpc.MarkReadResponse{Changed: changed, Unread: snap}, nil
}

// SendMessage posts a message through the same path as a live send.
func (s *Server) SendMessage(ctx context.Context, req *chatrpc.SendMessageRequest) (*data.Message, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := s.gateway.Send(ctx, userID, req.ConversationID, req.Text)
	if err != nil {
		return nil, s.toStatus("SendMessage", err)
	}
	return msg, nil
}

// ListConversations streams the caller's conversations, most recent first.
func (s *Server) ListConversations(_ *chatrpc.ListConversationsRequest, stream grpc.ServerStreamingServer[chat.ConversationView]) error {
	userID, err := caller(stream.Context())
	if err != nil {
		return err
	}
	views, err := s.chat.ListConversations(stream.Context(), userID)
	if err != nil {
		return s.toStatus("ListConversations", err)
	}
	for i := range views {
		if err := stream.Send(&views[i]); err != nil {
			return status.Errorf(codes.Internal, "failed to send conversation: %v", err)
		}
	}
	return nil
}

// GetHistory streams a conversation's messages in order.
func (s *Server) GetHistory(req *chatrpc.ConversationRequest, stream grpc.ServerStreamingServer[data.Message]) error {
	userID, err := caller(stream.Context())
	if err != nil {
		return err
	}
	msgs, err := s.chat.History(stream.Context(), userID, req.ConversationID)
	if err != nil {
		return s.toStatus("GetHistory", err)
	}
	for _, m := range msgs {
		if err := stream.Send(m); err != nil {
			return status.Errorf(codes.Internal, "failed to send message: %v", err)
		}
	}
	return nil
}

// ChatStream runs a live connection over a bidirectional stream. The
// identity verified by the interceptor binds the connection; the client
// still sends register before anything else.
func (s *Server) ChatStream(stream grpc.BidiStreamingServer[gateway.Frame, gateway.Frame]) error {
	userID, err := caller(stream.Context())
	if err != nil {
		return err
	}
	err = s.gateway.Serve(stream.Context(), &streamTransport{stream: stream}, userID)
	if err == nil || stream.Context().Err() != nil {
		return nil
	}
	if _, ok := grpcCodes[gateway.ErrorCode(err)]; ok {
		return s.toStatus("ChatStream", err)
	}
	// Server-side closes (registration timeout, slow consumer).
	return status.Error(codes.Aborted, err.Error())
}
