// Package rpc exposes the globe scene over gRPC. Messages are the protobuf
// well-known types; structured payloads travel as google.protobuf.Struct
// carrying the same JSON shape the HTTP API serves.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "globe.v1.GlobeService"

// GlobeServiceServer is the server API for GlobeService.
type GlobeServiceServer interface {
	GetFrame(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Pick(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SelectMarker(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	HoverMarker(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetSelection(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CloseSelection(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetCamera(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetCamera(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ListMarkers(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	LoadMarkers(context.Context, *structpb.Struct) (*wrapperspb.UInt32Value, error)
	Remount(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	StreamFrames(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes GlobeService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GlobeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetFrame", GlobeServiceServer.GetFrame),
		unary("Pick", GlobeServiceServer.Pick),
		unary("SelectMarker", GlobeServiceServer.SelectMarker),
		unary("HoverMarker", GlobeServiceServer.HoverMarker),
		unary("GetSelection", GlobeServiceServer.GetSelection),
		unary("CloseSelection", GlobeServiceServer.CloseSelection),
		unary("GetCamera", GlobeServiceServer.GetCamera),
		unary("SetCamera", GlobeServiceServer.SetCamera),
		unary("ListMarkers", GlobeServiceServer.ListMarkers),
		unary("LoadMarkers", GlobeServiceServer.LoadMarkers),
		unary("Remount", GlobeServiceServer.Remount),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamFrames",
			Handler:       streamFramesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "globe/v1/globe.proto",
}

// RegisterGlobeServiceServer registers srv on s.
func RegisterGlobeServiceServer(s grpc.ServiceRegistrar, srv GlobeServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

func unary[Req, Resp any](name string, call func(GlobeServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	method := fullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GlobeServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(GlobeServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func streamFramesHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(GlobeServiceServer).StreamFrames(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}
