package rpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/logging"
	"github.com/signalsfoundry/globe-poi/internal/observability"
	"github.com/signalsfoundry/globe-poi/internal/scene"
	"github.com/signalsfoundry/globe-poi/kb"
	"github.com/signalsfoundry/globe-poi/model"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// PickRequest is a pointer click. With Width and Height set, X and Y are
// viewport pixels; otherwise they are normalised device coordinates.
type PickRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Pixels reports whether the request carries viewport pixels.
func (r PickRequest) Pixels() bool { return r.Width > 0 || r.Height > 0 }

// HoverRequest sets or clears a marker's hovered flag.
type HoverRequest struct {
	ID      string `json:"id"`
	Hovered bool   `json:"hovered"`
}

// MarkerList is the ListMarkers payload.
type MarkerList struct {
	Markers []kb.Marker `json:"markers"`
}

// LoadRequest replaces the marker set.
type LoadRequest struct {
	Markers []model.MarkerRecord `json:"markers"`
}

// Server implements GlobeServiceServer on top of a running scene.
type Server struct {
	scene  *scene.Scene
	log    logging.Logger
	buffer int
}

var _ GlobeServiceServer = (*Server)(nil)

// NewServer binds a Server to sc.
func NewServer(sc *scene.Scene, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{scene: sc, log: log, buffer: 4}
}

func (s *Server) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

// GetFrame returns the latest rendered frame.
func (s *Server) GetFrame(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap, ok := s.scene.Snapshot()
	if !ok {
		return nil, ToStatusError(ErrNoFrame)
	}
	return s.encode(ctx, snap)
}

// Pick handles a pointer click and returns the pick plus the resulting
// selection.
func (s *Server) Pick(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req PickRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}

	var (
		res scene.ClickResult
		err error
	)
	if req.Pixels() {
		res, err = s.scene.ClickPixels(ctx, req.X, req.Y, req.Width, req.Height)
	} else {
		res, err = s.scene.Click(ctx, req.X, req.Y)
	}
	if err != nil {
		return nil, ToStatusError(err)
	}
	return s.encode(ctx, res)
}

// SelectMarker selects a marker by ID.
func (s *Server) SelectMarker(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := strings.TrimSpace(in.GetValue())
	if id == "" {
		return nil, ToStatusError(fmt.Errorf("%w: marker id is required", ErrInvalidRequest))
	}
	sel, err := s.scene.ClickMarker(ctx, id)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return s.encode(ctx, sel)
}

// HoverMarker sets a marker's hovered flag.
func (s *Server) HoverMarker(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req HoverRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.scene.Hover(ctx, req.ID, req.Hovered); err != nil {
		return nil, ToStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

// GetSelection returns the current selection.
func (s *Server) GetSelection(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sel, err := s.scene.Selection(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return s.encode(ctx, sel)
}

// CloseSelection dismisses the selection.
func (s *Server) CloseSelection(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sel, err := s.scene.CloseSelection(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return s.encode(ctx, sel)
}

// GetCamera returns the camera.
func (s *Server) GetCamera(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	cam, err := s.scene.Camera(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return s.encode(ctx, cam)
}

// SetCamera replaces the camera.
func (s *Server) SetCamera(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var cam core.Camera
	if err := fromStruct(in, &cam); err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.scene.SetCamera(ctx, cam); err != nil {
		return nil, ToStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

// ListMarkers returns every marker in load order.
func (s *Server) ListMarkers(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return s.encode(ctx, MarkerList{Markers: s.scene.Store().List()})
}

// LoadMarkers replaces the marker set and returns how many were loaded.
func (s *Server) LoadMarkers(ctx context.Context, in *structpb.Struct) (*wrapperspb.UInt32Value, error) {
	var req LoadRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := startSpan(ctx, "Globe.LoadMarkers", attribute.Int("globe.markers", len(req.Markers)))
	err := s.scene.LoadMarkers(ctx, req.Markers)
	observability.EndSpan(span, err)
	if err != nil {
		s.logger(ctx).Warn(ctx, "marker load rejected", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return wrapperspb.UInt32(uint32(len(req.Markers))), nil
}

// Remount rebuilds the scene from its current records.
func (s *Server) Remount(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.scene.Remount(ctx); err != nil {
		return nil, ToStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

// StreamFrames sends the latest frame, then every frame the subscriber keeps
// up with, until the client goes away or the scene stops.
func (s *Server) StreamFrames(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	frames, unsubscribe := s.scene.Subscribe(s.buffer)
	defer unsubscribe()

	if snap, ok := s.scene.Snapshot(); ok {
		if err := s.send(ctx, stream, snap); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.send(ctx, stream, snap); err != nil {
				return err
			}
		}
	}
}

func (s *Server) send(ctx context.Context, stream grpc.ServerStreamingServer[structpb.Struct], snap scene.FrameSnapshot) error {
	msg, err := s.encode(ctx, snap)
	if err != nil {
		return err
	}
	return stream.Send(msg)
}

func (s *Server) encode(ctx context.Context, v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		s.logger(ctx).Error(ctx, "encode response failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return out, nil
}
