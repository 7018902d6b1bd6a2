// Package chatrpc defines the pawchat.v1.ChatService gRPC contract: the
// service descriptor, its JSON codec and a typed client.
package chatrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/pawchat/internal/chat"
	"github.com/PaulBabatuyi/pawchat/internal/data"
	"github.com/PaulBabatuyi/pawchat/internal/gateway"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pawchat.v1.ChatService"

// Full method names, as seen by interceptors.
const (
	MethodRegister          = "/" + ServiceName + "/Register"
	MethodLogin             = "/" + ServiceName + "/Login"
	MethodOpenConversation  = "/" + ServiceName + "/OpenConversation"
	MethodMarkRead          = "/" + ServiceName + "/MarkRead"
	MethodSendMessage       = "/" + ServiceName + "/SendMessage"
	MethodListConversations = "/" + ServiceName + "/ListConversations"
	MethodGetHistory        = "/" + ServiceName + "/GetHistory"
	MethodChatStream        = "/" + ServiceName + "/ChatStream"
)

// PublicMethods need no bearer token.
var PublicMethods = map[string]bool{
	MethodRegister: true,
	MethodLogin:    true,
}

// ChatServiceServer is the server API for ChatService.
type ChatServiceServer interface {
	Register(context.Context, *RegisterRequest) (*AuthResponse, error)
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	OpenConversation(context.Context, *OpenConversationRequest) (*chat.ConversationView, error)
	MarkRead(context.Context, *ConversationRequest) (*MarkReadResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*data.Message, error)
	ListConversations(*ListConversationsRequest, grpc.ServerStreamingServer[chat.ConversationView]) error
	GetHistory(*ConversationRequest, grpc.ServerStreamingServer[data.Message]) error
	ChatStream(grpc.BidiStreamingServer[gateway.Frame, gateway.Frame]) error
}

// UnimplementedChatServiceServer can be embedded for forward compatibility.
type UnimplementedChatServiceServer struct{}

func (UnimplementedChatServiceServer) Register(context.Context, *RegisterRequest) (*AuthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Register not implemented")
}
func (UnimplementedChatServiceServer) Login(context.Context, *LoginRequest) (*AuthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Login not implemented")
}
func (UnimplementedChatServiceServer) OpenConversation(context.Context, *OpenConversationRequest) (*chat.ConversationView, error) {
	return nil, status.Error(codes.Unimplemented, "method OpenConversation not implemented")
}
func (UnimplementedChatServiceServer) MarkRead(context.Context, *ConversationRequest) (*MarkReadResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method MarkRead not implemented")
}
func (UnimplementedChatServiceServer) SendMessage(context.Context, *SendMessageRequest) (*data.Message, error) {
	return nil, status.Error(codes.Unimplemented, "method SendMessage not implemented")
}
func (UnimplementedChatServiceServer) ListConversations(*ListConversationsRequest, grpc.ServerStreamingServer[chat.ConversationView]) error {
	return status.Error(codes.Unimplemented, "method ListConversations not implemented")
}
func (UnimplementedChatServiceServer) GetHistory(*ConversationRequest, grpc.ServerStreamingServer[data.Message]) error {
	return status.Error(codes.Unimplemented, "method GetHistory not implemented")
}
func (UnimplementedChatServiceServer) ChatStream(grpc.BidiStreamingServer[gateway.Frame, gateway.Frame]) error {
	return status.Error(codes.Unimplemented, "method ChatStream not implemented")
}

// RegisterChatServiceServer registers srv on s.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatService_ServiceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodHandler.
func unary[Req, Res any](fullMethod string, call func(ChatServiceServer, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ChatServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ChatServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func listConversationsHandler(srv any, stream grpc.ServerStream) error {
	in := new(ListConversationsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).ListConversations(in, &grpc.GenericServerStream[ListConversationsRequest, chat.ConversationView]{ServerStream: stream})
}

func getHistoryHandler(srv any, stream grpc.ServerStream) error {
	in := new(ConversationRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).GetHistory(in, &grpc.GenericServerStream[ConversationRequest, data.Message]{ServerStream: stream})
}

func chatStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ChatServiceServer).ChatStream(&grpc.GenericServerStream[gateway.Frame, gateway.Frame]{ServerStream: stream})
}

// ChatService_ServiceDesc is the grpc.ServiceDesc for ChatService.
var ChatService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Register",
			Handler: unary(MethodRegister, func(s ChatServiceServer, ctx context.Context, in *RegisterRequest) (*AuthResponse, error) {
				return s.Register(ctx, in)
			}),
		},
		{
			MethodName: "Login",
			Handler: unary(MethodLogin, func(s ChatServiceServer, ctx context.Context, in *LoginRequest) (*AuthResponse, error) {
				return s.Login(ctx, in)
			}),
		},
		{
			MethodName: "OpenConversation",
			Handler: unary(MethodOpenConversation, func(s ChatServiceServer, ctx context.Context, in *OpenConversationRequest) (*chat.ConversationView, error) {
				return s.OpenConversation(ctx, in)
			}),
		},
		{
			MethodName: "MarkRead",
			Handler: unary(MethodMarkRead, func(s ChatServiceServer, ctx context.Context, in *ConversationRequest) (*MarkReadResponse, error) {
				return s.MarkRead(ctx, in)
			}),
		},
		{
			MethodName: "SendMessage",
			Handler: unary(MethodSendMessage, func(s ChatServiceServer, ctx context.Context, in *SendMessageRequest) (*data.Message, error) {
				return s.SendMessage(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ListConversations",
			Handler:       listConversationsHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "GetHistory",
			Handler:       getHistoryHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "ChatStream",
			Handler:       chatStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "pawchat/v1/chat",
}
