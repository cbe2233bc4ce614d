// Package kvgrpc contains the KV gRPC client and server adapters.
package kvgrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/i-melnichenko/quorumcore/internal/transport/grpc/gobrpc"
)

// PutRequest/PutResponse etc. are plain Go structs carried by the gob codec
// in place of generated kvv1 protobuf messages (there is no .proto file or
// protoc-gen-go output anywhere backing this service).
type PutRequest struct {
	Key   string
	Value string
}

type PutResponse struct {
	Index int64
}

type GetRequest struct {
	Key string
}

type GetResponse struct {
	Value string
	Found bool
}

type DeleteRequest struct {
	Key string
}

type DeleteResponse struct {
	Index int64
}

const (
	putMethod    = "/kv.KVService/Put"
	getMethod    = "/kv.KVService/Get"
	deleteMethod = "/kv.KVService/Delete"
)

// KVServer is implemented by the server-side adapter over service.KV.
type KVServer interface {
	Put(ctx context.Context, req *PutRequest) (*PutResponse, error)
	Get(ctx context.Context, req *GetRequest) (*GetResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error)
}

// ServiceDesc is the hand-built grpc.ServiceDesc for KVServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "kv.KVService",
	HandlerType: (*KVServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: putHandler},
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Delete", Handler: deleteHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/grpc/kv/service.go",
}

func putHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KVServer).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: putMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(KVServer).Put(ctx, req.(*PutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KVServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(KVServer).Get(ctx, req.(*GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KVServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deleteMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(KVServer).Delete(ctx, req.(*DeleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterKVServer registers srv against s using ServiceDesc.
func RegisterKVServer(s grpc.ServiceRegistrar, srv KVServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type kvClient struct {
	cc grpc.ClientConnInterface
}

func newKVClient(cc grpc.ClientConnInterface) *kvClient {
	return &kvClient{cc: cc}
}

func (c *kvClient) Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*PutResponse, error) {
	out := new(PutResponse)
	opts = append(opts, grpc.CallContentSubtype(gobrpc.Name))
	if err := c.cc.Invoke(ctx, putMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error) {
	out := new(GetResponse)
	opts = append(opts, grpc.CallContentSubtype(gobrpc.Name))
	if err := c.cc.Invoke(ctx, getMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	out := new(DeleteResponse)
	opts = append(opts, grpc.CallContentSubtype(gobrpc.Name))
	if err := c.cc.Invoke(ctx, deleteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
