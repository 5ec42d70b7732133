package rpc

import (
	"context"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/interaction"
	"github.com/signalsfoundry/globe-poi/internal/scene"
	"github.com/signalsfoundry/globe-poi/kb"
	"github.com/signalsfoundry/globe-poi/model"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a typed GlobeService client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod(method), in, out, opts...)
}

func (c *Client) structCall(ctx context.Context, method string, in any, out any, opts ...grpc.CallOption) error {
	resp := new(structpb.Struct)
	if err := c.invoke(ctx, method, in, resp, opts...); err != nil {
		return err
	}
	return fromStruct(resp, out)
}

// Frame fetches the latest frame.
func (c *Client) Frame(ctx context.Context, opts ...grpc.CallOption) (scene.FrameSnapshot, error) {
	var snap scene.FrameSnapshot
	err := c.structCall(ctx, "GetFrame", &emptypb.Empty{}, &snap, opts...)
	return snap, err
}

// Pick sends a pointer click.
func (c *Client) Pick(ctx context.Context, req PickRequest, opts ...grpc.CallOption) (scene.ClickResult, error) {
	var res scene.ClickResult
	in, err := toStruct(req)
	if err != nil {
		return res, err
	}
	err = c.structCall(ctx, "Pick", in, &res, opts...)
	return res, err
}

// SelectMarker selects a marker by ID.
func (c *Client) SelectMarker(ctx context.Context, id string, opts ...grpc.CallOption) (interaction.Selection, error) {
	var sel interaction.Selection
	err := c.structCall(ctx, "SelectMarker", wrapperspb.String(id), &sel, opts...)
	return sel, err
}

// Hover sets a marker's hovered flag.
func (c *Client) Hover(ctx context.Context, id string, hovered bool, opts ...grpc.CallOption) error {
	in, err := toStruct(HoverRequest{ID: id, Hovered: hovered})
	if err != nil {
		return err
	}
	return c.invoke(ctx, "HoverMarker", in, new(emptypb.Empty), opts...)
}

// Selection fetches the current selection.
func (c *Client) Selection(ctx context.Context, opts ...grpc.CallOption) (interaction.Selection, error) {
	var sel interaction.Selection
	err := c.structCall(ctx, "GetSelection", &emptypb.Empty{}, &sel, opts...)
	return sel, err
}

// CloseSelection dismisses the selection.
func (c *Client) CloseSelection(ctx context.Context, opts ...grpc.CallOption) (interaction.Selection, error) {
	var sel interaction.Selection
	err := c.structCall(ctx, "CloseSelection", &emptypb.Empty{}, &sel, opts...)
	return sel, err
}

// Camera fetches the camera.
func (c *Client) Camera(ctx context.Context, opts ...grpc.CallOption) (core.Camera, error) {
	var cam core.Camera
	err := c.structCall(ctx, "GetCamera", &emptypb.Empty{}, &cam, opts...)
	return cam, err
}

// SetCamera replaces the camera.
func (c *Client) SetCamera(ctx context.Context, cam core.Camera, opts ...grpc.CallOption) error {
	in, err := toStruct(cam)
	if err != nil {
		return err
	}
	return c.invoke(ctx, "SetCamera", in, new(emptypb.Empty), opts...)
}

// Markers lists every marker.
func (c *Client) Markers(ctx context.Context, opts ...grpc.CallOption) ([]kb.Marker, error) {
	var list MarkerList
	err := c.structCall(ctx, "ListMarkers", &emptypb.Empty{}, &list, opts...)
	return list.Markers, err
}

// LoadMarkers replaces the marker set.
func (c *Client) LoadMarkers(ctx context.Context, records []model.MarkerRecord, opts ...grpc.CallOption) (int, error) {
	in, err := toStruct(LoadRequest{Markers: records})
	if err != nil {
		return 0, err
	}
	out := new(wrapperspb.UInt32Value)
	if err := c.invoke(ctx, "LoadMarkers", in, out, opts...); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

// Remount asks the server to rebuild the scene.
func (c *Client) Remount(ctx context.Context, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "Remount", &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

// FrameStream receives frames from StreamFrames.
type FrameStream struct {
	stream grpc.ServerStreamingClient[structpb.Struct]
}

// Recv blocks for the next frame. It returns io.EOF when the server ends the
// stream.
func (f *FrameStream) Recv() (scene.FrameSnapshot, error) {
	var snap scene.FrameSnapshot
	msg, err := f.stream.Recv()
	if err != nil {
		return snap, err
	}
	err = fromStruct(msg, &snap)
	return snap, err
}

// StreamFrames opens a frame stream; cancel ctx to end it.
func (c *Client) StreamFrames(ctx context.Context, opts ...grpc.CallOption) (*FrameStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("StreamFrames"), opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return &FrameStream{stream: x}, nil
}
