package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/globe-poi/internal/logging"
	"github.com/signalsfoundry/globe-poi/internal/scene"
)

const (
	wsWriteWait   = 5 * time.Second
	wsFrameBuffer = 4
)

// Pointer events a websocket client may send.
const (
	eventClick = "click"
	eventMove  = "move"
	eventClose = "close"
)

// pointerEvent is a client message; X and Y are normalised device
// coordinates.
type pointerEvent struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// stream upgrades to a websocket and pushes every frame the client keeps up
// with. Pointer events read from the socket drive the scene; their effect
// shows up in later frames.
func (a *API) stream(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = a.log
	}

	frames, unsubscribe := a.scene.Subscribe(wsFrameBuffer)
	defer unsubscribe()

	go a.readEvents(ctx, cancel, conn, log)

	if snap, ok := a.scene.Snapshot(); ok {
		if err := writeFrame(conn, snap); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "scene stopped"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := writeFrame(conn, snap); err != nil {
				log.Debug(ctx, "websocket write failed", logging.Err(err))
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, snap scene.FrameSnapshot) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(snap)
}

// readEvents runs until the client disconnects, then cancels the stream.
func (a *API) readEvents(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, log logging.Logger) {
	defer cancel()
	for {
		var ev pointerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug(ctx, "websocket read ended", logging.Err(err))
			}
			return
		}

		var err error
		switch ev.Type {
		case eventClick:
			_, err = a.scene.Click(ctx, ev.X, ev.Y)
		case eventMove:
			_, err = a.scene.HoverAt(ctx, ev.X, ev.Y)
		case eventClose:
			_, err = a.scene.CloseSelection(ctx)
		default:
			log.Debug(ctx, "ignoring websocket event", logging.String("type", ev.Type))
		}
		if err != nil {
			log.Warn(ctx, "websocket event failed", logging.String("type", ev.Type), logging.Err(err))
		}
	}
}
