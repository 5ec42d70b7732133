package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/scene"
	"github.com/signalsfoundry/globe-poi/model"
)

type pickRequest struct {
	X      *float64 `json:"x" binding:"required"`
	Y      *float64 `json:"y" binding:"required"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
}

type hoverAtRequest struct {
	X *float64 `json:"x" binding:"required"`
	Y *float64 `json:"y" binding:"required"`
}

type loadRequest struct {
	Markers []model.MarkerRecord `json:"markers"`
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "markers": a.scene.Store().Len()})
}

func (a *API) frame(c *gin.Context) {
	snap, ok := a.scene.Snapshot()
	if !ok {
		a.fail(c, errNoFrame)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// pick takes normalised device coordinates, or viewport pixels when width
// and height are given.
func (a *API) pick(c *gin.Context) {
	var req pickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	var (
		res scene.ClickResult
		err error
	)
	ctx := c.Request.Context()
	if req.Width != 0 || req.Height != 0 {
		res, err = a.scene.ClickPixels(ctx, *req.X, *req.Y, req.Width, req.Height)
	} else {
		res, err = a.scene.Click(ctx, *req.X, *req.Y)
	}
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) hoverAt(c *gin.Context) {
	var req hoverAtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	id, err := a.scene.HoverAt(c.Request.Context(), *req.X, *req.Y)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hovered": id})
}

func (a *API) listMarkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"markers": a.scene.Store().List()})
}

func (a *API) loadMarkers(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := a.scene.LoadMarkers(c.Request.Context(), req.Markers); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": len(req.Markers)})
}

func (a *API) selectMarker(c *gin.Context) {
	sel, err := a.scene.ClickMarker(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSelectionBody(sel))
}

func (a *API) hover(hovered bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.scene.Hover(c.Request.Context(), c.Param("id"), hovered); err != nil {
			a.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (a *API) selection(c *gin.Context) {
	sel, err := a.scene.Selection(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSelectionBody(sel))
}

func (a *API) closeSelection(c *gin.Context) {
	sel, err := a.scene.CloseSelection(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSelectionBody(sel))
}

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// selectionQR renders a PNG QR code pointing at the selected location.
func (a *API) selectionQR(c *gin.Context) {
	sel, err := a.scene.Selection(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	if !sel.Active() {
		a.fail(c, errNoSelect)
		return
	}

	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			a.fail(c, fmt.Errorf("%w: size must be between %d and %d", errBadRequest, minQRSize, maxQRSize))
			return
		}
		size = n
	}

	png, err := qrcode.Encode(a.shareLink(sel.Location, sel.Name), qrcode.Medium, size)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// shareLink is either base?lat=..&lon=..&name=.. or an RFC 5870 geo URI.
func (a *API) shareLink(loc model.GeoCoordinate, name string) string {
	lat := strconv.FormatFloat(loc.Lat, 'f', 4, 64)
	lon := strconv.FormatFloat(loc.Lon, 'f', 4, 64)
	if a.shareBase == "" {
		return "geo:" + lat + "," + lon
	}
	q := url.Values{}
	q.Set("lat", lat)
	q.Set("lon", lon)
	if name != "" {
		q.Set("name", name)
	}
	return a.shareBase + "?" + q.Encode()
}

func (a *API) camera(c *gin.Context) {
	cam, err := a.scene.Camera(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cam)
}

func (a *API) setCamera(c *gin.Context) {
	var cam core.Camera
	if err := c.ShouldBindJSON(&cam); err != nil {
		a.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := a.scene.SetCamera(c.Request.Context(), cam); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) remount(c *gin.Context) {
	if err := a.scene.Remount(c.Request.Context()); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
