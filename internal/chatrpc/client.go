package chatrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/PaulBabatuyi/pawchat/internal/chat"
	"github.com/PaulBabatuyi/pawchat/internal/data"
	"github.com/PaulBabatuyi/pawchat/internal/gateway"
)

// ChatServiceClient is the client API for ChatService.
type ChatServiceClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	OpenConversation(ctx context.Context, in *OpenConversationRequest, opts ...grpc.CallOption) (*chat.ConversationView, error)
	MarkRead(ctx context.Context, in *ConversationRequest, opts ...grpc.CallOption) (*MarkReadResponse, error)
	SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*data.Message, error)
	ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[chat.ConversationView], error)
	GetHistory(ctx context.Context, in *ConversationRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[data.Message], error)
	ChatStream(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[gateway.Frame, gateway.Frame], error)
}

type chatServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewChatServiceClient returns a client that always speaks the JSON codec.
func NewChatServiceClient(cc grpc.ClientConnInterface) ChatServiceClient {
	return &chatServiceClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func invoke[Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	if err := cc.Invoke(ctx, method, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chatServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *chatServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *chatServiceClient) OpenConversation(ctx context.Context, in *OpenConversationRequest, opts ...grpc.CallOption) (*chat.ConversationView, error) {
	return invoke[chat.ConversationView](ctx, c.cc, MethodOpenConversation, in, opts)
}

func (c *chatServiceClient) MarkRead(ctx context.Context, in *ConversationRequest, opts ...grpc.CallOption) (*MarkReadResponse, error) {
	return invoke[MarkReadResponse](ctx, c.cc, MethodMarkRead, in, opts)
}

func (c *chatServiceClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*data.Message, error) {
	return invoke[data.Message](ctx, c.cc, MethodSendMessage, in, opts)
}

func serverStream[Req, Res any](ctx context.Context, cc grpc.ClientConnInterface, desc *grpc.StreamDesc, method string, in *Req, opts []grpc.CallOption) (grpc.ServerStreamingClient[Res], error) {
	stream, err := cc.NewStream(ctx, desc, method, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Res]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *chatServiceClient) ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[chat.ConversationView], error) {
	return serverStream[ListConversationsRequest, chat.ConversationView](ctx, c.cc, &ChatService_ServiceDesc.Streams[0], MethodListConversations, in, opts)
}

func (c *chatServiceClient) GetHistory(ctx context.Context, in *ConversationRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[data.Message], error) {
	return serverStream[ConversationRequest, data.Message](ctx, c.cc, &ChatService_ServiceDesc.Streams[1], MethodGetHistory, in, opts)
}

func (c *chatServiceClient) ChatStream(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[gateway.Frame, gateway.Frame], error) {
	stream, err := c.cc.NewStream(ctx, &ChatService_ServiceDesc.Streams[2], MethodChatStream, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[gateway.Frame, gateway.Frame]{ClientStream: stream}, nil
}
