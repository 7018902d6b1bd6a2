package main

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/PaulBabatuyi/pawchat/internal/gateway"
)

// streamTransport carries gateway frames over a ChatStream call. The stream
// ends when the handler returns, so Close has nothing to release.
type streamTransport struct {
	stream grpc.BidiStreamingServer[gateway.Frame, gateway.Frame]
}

func (t *streamTransport) ReadFrame(_ context.Context) (*gateway.Frame, error) {
	f, err := t.stream.Recv()
	if err != nil {
		return nil, err
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", gateway.ErrBadRequest)
	}
	return f, nil
}

func (t *streamTransport) WriteFrame(f *gateway.Frame) error {
	return t.stream.Send(f)
}

func (t *streamTransport) Close() error { return nil }
