package chatrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/PaulBabatuyi/pawchat/internal/gateway"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())
}

func TestCodec_PlainStructs(t *testing.T) {
	var c Codec
	raw, err := c.Marshal(&SendMessageRequest{ConversationID: "c1", Text: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"conversationId":"c1","text":"hi"}`, string(raw))

	var f gateway.Frame
	require.NoError(t, c.Unmarshal([]byte(`{"type":"ping","ref":"1"}`), &f))
	assert.Equal(t, gateway.EventPing, f.Type)
	assert.Equal(t, "1", f.Ref)
}

func TestCodec_ProtoMessages(t *testing.T) {
	var c Codec
	raw, err := c.Marshal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"SERVING"}`, string(raw))

	var out healthpb.HealthCheckResponse
	require.NoError(t, c.Unmarshal(raw, &out))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, out.GetStatus())
}

func TestServiceDesc(t *testing.T) {
	assert.Equal(t, ServiceName, ChatService_ServiceDesc.ServiceName)
	assert.Len(t, ChatService_ServiceDesc.Methods, 5)
	require.Len(t, ChatService_ServiceDesc.Streams, 3)
	assert.Equal(t, "ListConversations", ChatService_ServiceDesc.Streams[0].StreamName)
	assert.Equal(t, "GetHistory", ChatService_ServiceDesc.Streams[1].StreamName)
	assert.True(t, ChatService_ServiceDesc.Streams[2].ClientStreams)
	assert.True(t, PublicMethods[MethodLogin])
	assert.False(t, PublicMethods[MethodChatStream])
}
