// Package rpcwire defines Ridge's gRPC service surfaces: the control-plane
// RPCs (spec.md §6) and the node-agent RPCs, plus the wire codec that backs
// them.
//
// The retrieval pack this module was built from does not include generated
// protobuf stubs for a gRPC service of this shape, and this exercise does
// not run protoc or the Go toolchain. Rather than hand-author risky
// reflection-based .pb.go equivalents, this package registers a codec named
// "proto" — the name grpc-go's transport selects by default — that
// marshals plain json-tagged Go structs with encoding/json instead of
// protobuf wire format. The service descriptors and client/server stubs
// below are otherwise written in the exact shape protoc-gen-go-grpc emits.
package rpcwire

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "proto"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
