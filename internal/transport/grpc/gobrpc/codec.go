// Package gobrpc registers a single gob-based grpc/encoding.Codec shared by
// every hand-written gRPC service in this module (raft, kv, admin). None of
// these services has a .proto file or protoc-gen-go output; each instead
// hand-writes its grpc.ServiceDesc and marshals its plain Go request/
// response structs through this codec via grpc.CallContentSubtype(Name).
package gobrpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is the gRPC content-subtype this codec is registered under.
const Name = "raft-gob"

func init() {
	encoding.RegisterCodec(codec{})
}

type codec struct{}

func (codec) Name() string { return Name }

func (codec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gobrpc: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gobrpc: decode: %w", err)
	}
	return nil
}
