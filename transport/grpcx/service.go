// Package grpcx exposes invoker sessions as a bidirectional streaming gRPC
// method.
package grpcx

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/machinefabric/invoker-go/session"
	"github.com/machinefabric/invoker-go/wire"
)

const (
	ServiceName = "machinefabric.invoker.v1.Invoker"
	// InvokeMethod is the full method name of the single RPC
	InvokeMethod = "/" + ServiceName + "/Invoke"
	// CodecMetadataKey selects the frame codec of a call; absent means
	// protobuf
	CodecMetadataKey = "x-invoker-codec"
)

// InvokerServer serves the Invoke stream
type InvokerServer interface {
	Invoke(stream grpc.ServerStream) error
}

func invokeHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(InvokerServer).Invoke(stream)
}

// ServiceDesc describes the service in api/invoker.proto
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InvokerServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Invoke",
			Handler:       invokeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "api/invoker.proto",
}

// ServerOptions returns the options a server hosting the service needs
func ServerOptions(limits wire.Limits) []grpc.ServerOption {
	limits = limits.Effective()
	return []grpc.ServerOption{
		grpc.ForceServerCodec(rawCodec{}),
		grpc.MaxRecvMsgSize(limits.MaxFrame),
		grpc.MaxSendMsgSize(limits.MaxFrame),
	}
}

// Register adds the service to s. s must be built with ServerOptions.
func Register(s *grpc.Server, srv InvokerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server runs one session per Invoke call
type Server struct {
	handler *session.Handler
}

func NewServer(h *session.Handler) *Server {
	return &Server{handler: h}
}

func (s *Server) Invoke(stream grpc.ServerStream) error {
	codec, err := codecFromContext(stream.Context())
	if err != nil {
		logrus.WithError(err).Warn("rejecting invoke call")
		return err
	}
	// A returned *invoker.Error becomes the call status through its
	// GRPCStatus method.
	return s.handler.Serve(stream.Context(), serverConn{stream}, codec)
}

func codecFromContext(ctx context.Context) (wire.Codec, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return wire.ProtoCodec{}, nil
	}
	values := md.Get(CodecMetadataKey)
	if len(values) == 0 {
		return wire.ProtoCodec{}, nil
	}
	return wire.CodecByName(strings.ToLower(values[0]))
}

type serverConn struct {
	stream grpc.ServerStream
}

func (c serverConn) Recv() ([]byte, error) {
	var b []byte
	if err := c.stream.RecvMsg(&b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c serverConn) Send(b []byte) error {
	return c.stream.SendMsg(&b)
}

// Dial connects to an invoker without transport security
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(target, opts...)
}

// ClientStream is the caller side of one Invoke call
type ClientStream struct {
	stream grpc.ClientStream
}

// Open starts an Invoke call. codec selects the frame codec; nil means
// protobuf.
func Open(ctx context.Context, cc grpc.ClientConnInterface, codec wire.Codec, opts ...grpc.CallOption) (*ClientStream, error) {
	if codec != nil && codec.Name() != wire.CodecProto {
		ctx = metadata.AppendToOutgoingContext(ctx, CodecMetadataKey, codec.Name())
	}
	opts = append([]grpc.CallOption{grpc.ForceCodec(rawCodec{})}, opts...)
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], InvokeMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &ClientStream{stream: stream}, nil
}

func (c *ClientStream) Send(b []byte) error {
	return c.stream.SendMsg(&b)
}

func (c *ClientStream) Recv() ([]byte, error) {
	var b []byte
	if err := c.stream.RecvMsg(&b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *ClientStream) CloseSend() error {
	return c.stream.CloseSend()
}
