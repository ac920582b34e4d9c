package eventsvc

import (
	"strconv"
	"time"

	"google.golang.org/grpc"

	"github.com/agentrt/agentrt/conversation"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/log"
)

// Server implements the Subscribe stream against a conversation.Manager.
type Server struct {
	mgr *conversation.Manager
}

// NewServer wraps mgr for gRPC registration.
func NewServer(mgr *conversation.Manager) *Server {
	return &Server{mgr: mgr}
}

// Register installs the hand-rolled ServiceDesc on s, the equivalent of
// the pb.RegisterXServer call a protoc-gen-go-grpc stub would provide.
func Register(s *grpc.Server, srv *Server) {
	s.RegisterService(&ServiceDesc, srv)
}

// subscribe drives one Subscribe RPC: decode the request, attach a
// Manager subscriber, and relay every delivered event as an
// EventMessage until the client disconnects.
func (s *Server) subscribe(stream grpc.ServerStream) error {
	var req SubscribeRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}

	events := make(chan *event.Event, 16)
	ctx := stream.Context()
	cb := eventstream.Callback(func(ev *event.Event) error {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
		return nil
	})

	subName := "eventsvc-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := s.mgr.AttachSubscriber(ctx, req.ConversationID, subName, req.StartID, cb); err != nil {
		return err
	}
	defer func() {
		if err := s.mgr.DetachSubscriber(req.ConversationID, subName); err != nil {
			log.Warnf("eventsvc: detach subscriber %s: %v", subName, err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if err := stream.SendMsg(toWire(ev)); err != nil {
				return err
			}
		}
	}
}

// subscribeHandler adapts subscribe to grpc.StreamHandler's signature,
// the role protoc-gen-go-grpc's generated _Handler function plays for a
// real .proto-defined service.
func subscribeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*Server).subscribe(stream)
}

// ServiceDesc is the hand-rolled equivalent of a protoc-generated
// grpc.ServiceDesc: one server-streaming method, registered under the
// agentrt-json codec (codec.go) instead of protobuf wire encoding.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "agentrt.eventsvc.EventService",
	HandlerType: (*any)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "eventsvc.go",
}
