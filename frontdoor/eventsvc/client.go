package eventsvc

import (
	"context"

	"google.golang.org/grpc"
)

// Client streams events from one conversation over a gRPC connection
// established with this package's agentrt-json codec
// (grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName))).
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an existing *grpc.ClientConn.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

// Subscribe opens the Subscribe stream for conversationID from startID
// and returns a channel of decoded EventMessages, closed when ctx is
// canceled or the stream ends.
func (c *Client) Subscribe(ctx context.Context, conversationID string, startID int64) (<-chan *EventMessage, error) {
	desc := &grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}
	stream, err := c.cc.NewStream(ctx, desc, "/agentrt.eventsvc.EventService/Subscribe",
		grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&SubscribeRequest{ConversationID: conversationID, StartID: startID}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	out := make(chan *EventMessage, 16)
	go func() {
		defer close(out)
		for {
			var msg EventMessage
			if err := stream.RecvMsg(&msg); err != nil {
				return
			}
			select {
			case out <- &msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
