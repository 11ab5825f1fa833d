// Package api exposes the motion transfer sessions over HTTP.
package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/geneseez/geneseez/internal/api"
	apperrors "github.com/geneseez/geneseez/internal/errors"
	"github.com/geneseez/geneseez/internal/middleware"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/core/engine"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/core/session"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/types"
	"github.com/geneseez/geneseez/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

// uploadField is the multipart field carrying the file
const uploadField = "file"

// Options tune the HTTP layer
type Options struct {
	// MaxRequestBytes caps a single upload request; 0 disables the cap
	MaxRequestBytes int64
	// AllowedOrigins is checked on websocket handshakes
	AllowedOrigins []string
	// PingInterval keeps websocket connections alive
	PingInterval time.Duration
}

// APIHandler serves the motion session endpoints
type APIHandler struct {
	sessions *session.Manager
	opts     Options
	upgrader websocket.Upgrader
	logger   hclog.Logger
}

// NewAPIHandler creates a handler backed by the session manager
func NewAPIHandler(sessions *session.Manager, opts Options, logger hclog.Logger) *APIHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}

	h := &APIHandler{
		sessions: sessions,
		opts:     opts,
		logger:   logger.Named("motion-api"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(h.opts.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return h
}

// controller resolves the :id parameter, answering the error itself
func (h *APIHandler) controller(c *gin.Context) (*engine.Controller, bool) {
	ctrl, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		api.RespondWithError(c, err)
		return nil, false
	}
	return ctrl, true
}

func (h *APIHandler) respondSnapshot(c *gin.Context, ctrl *engine.Controller, status int) {
	snap, err := ctrl.Snapshot(c.Request.Context())
	if err != nil {
		api.RespondWithError(c, err)
		return
	}
	c.JSON(status, snap)
}

// CreateSession handles POST /api/v1/motion/sessions
//
// Starts a new session in the upload view and returns its snapshot.
func (h *APIHandler) CreateSession(c *gin.Context) {
	ctrl, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		api.RespondWithError(c, err)
		return
	}

	c.Header("Location", c.FullPath()+"/"+ctrl.ID())
	h.respondSnapshot(c, ctrl, http.StatusCreated)
}

// GetSession handles GET /api/v1/motion/sessions/:id
//
// Response:
//
//	{
//	  "sessionId": "string",
//	  "hasImage": true,
//	  "hasVideo": false,
//	  "hasResult": false,
//	  "isProcessing": false,
//	  "progress": 0,
//	  "canGenerate": false,
//	  "view": "upload"
//	}
func (h *APIHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.respondSnapshot(c, ctrl, http.StatusOK)
}

// DeleteSession handles DELETE /api/v1/motion/sessions/:id
//
// Tears the session down. Pending timers are cancelled.
func (h *APIHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		api.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Upload handles PUT /api/v1/motion/sessions/:id/slots/:slot
//
// Expects multipart/form-data with the file in the "file" field. The slot
// keeps its previous content if the upload fails.
func (h *APIHandler) Upload(c *gin.Context) {
	slot, err := types.ParseSlot(c.Param("slot"))
	if err != nil {
		api.RespondWithError(c, apperrors.ValidationError("upload", err))
		return
	}

	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if h.opts.MaxRequestBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxRequestBytes)
	}

	header, err := c.FormFile(uploadField)
	if err != nil {
		api.RespondWithError(c, uploadError(err))
		return
	}

	file, err := header.Open()
	if err != nil {
		api.RespondWithError(c, apperrors.ValidationError("upload", fmt.Errorf("%w: %w", apperrors.ErrReadFailed, err)))
		return
	}
	defer file.Close()

	if err := ctrl.Upload(c.Request.Context(), slot, file, header.Filename); err != nil {
		api.RespondWithError(c, err)
		return
	}

	h.logger.Debug("upload stored",
		"session_id", ctrl.ID(),
		"slot", slot,
		"filename", header.Filename,
		"size", header.Size)
	h.respondSnapshot(c, ctrl, http.StatusOK)
}

// uploadError classifies a failure to parse the multipart body
func uploadError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return apperrors.ValidationError("upload", fmt.Errorf("%w: %w", apperrors.ErrUploadTooLarge, err))
	}
	return apperrors.ValidationError("upload", fmt.Errorf("%w: %w", apperrors.ErrReadFailed, err))
}

// RemoveSlot handles DELETE /api/v1/motion/sessions/:id/slots/:slot
func (h *APIHandler) RemoveSlot(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.Remove(c.Request.Context(), types.Slot(c.Param("slot"))); err != nil {
		api.RespondWithError(c, err)
		return
	}
	h.respondSnapshot(c, ctrl, http.StatusOK)
}

// PreviewSlot handles GET /api/v1/motion/sessions/:id/slots/:slot
//
// Streams the uploaded bytes back so the page can render a preview.
func (h *APIHandler) PreviewSlot(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	media, err := ctrl.Source(c.Request.Context(), types.Slot(c.Param("slot")))
	if err != nil {
		api.RespondWithError(c, err)
		return
	}
	h.serveMedia(c, media)
}

// SlotDataURI handles GET /api/v1/motion/sessions/:id/slots/:slot/datauri
//
// Response:
//
//	{
//	  "uri": "data:image/png;base64,...",
//	  "mediaType": "image/png",
//	  "size": 1024
//	}
func (h *APIHandler) SlotDataURI(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	media, err := ctrl.Source(c.Request.Context(), types.Slot(c.Param("slot")))
	if err != nil {
		api.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uri":       media.URI,
		"mediaType": media.MediaType,
		"size":      media.Size,
		"name":      media.Name,
	})
}

// Generate handles POST /api/v1/motion/sessions/:id/generate
//
// Starts the fake processing and answers 202 with the processing snapshot.
// 409 when an input is missing or a generation is already running.
func (h *APIHandler) Generate(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.Generate(c.Request.Context()); err != nil {
		api.RespondWithError(c, err)
		return
	}
	h.respondSnapshot(c, ctrl, http.StatusAccepted)
}

// Reset handles POST /api/v1/motion/sessions/:id/reset
func (h *APIHandler) Reset(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.Reset(c.Request.Context()); err != nil {
		api.RespondWithError(c, err)
		return
	}
	h.respondSnapshot(c, ctrl, http.StatusOK)
}

// PreviewResult handles GET /api/v1/motion/sessions/:id/result
func (h *APIHandler) PreviewResult(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	media, err := ctrl.Result(c.Request.Context())
	if err != nil {
		api.RespondWithError(c, err)
		return
	}
	h.serveMedia(c, media)
}

// Download handles GET /api/v1/motion/sessions/:id/download
//
// Sends the result as an attachment named <prefix>-<unix millis><ext>.
func (h *APIHandler) Download(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	artifact, err := ctrl.Download(c.Request.Context())
	if err != nil {
		api.RespondWithError(c, err)
		return
	}

	h.logger.Info("result downloaded", "session_id", ctrl.ID(), "filename", artifact.Filename)

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	c.Header("Content-Length", strconv.Itoa(len(artifact.Data)))
	c.Data(http.StatusOK, artifact.MediaType, artifact.Data)
}

// GetLimits handles GET /api/v1/motion/limits
func (h *APIHandler) GetLimits(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Limits())
}

// serveMedia writes the decoded bytes of a media handle inline. Range and
// conditional requests are honoured so video previews can seek.
func (h *APIHandler) serveMedia(c *gin.Context, media *types.Media) {
	_, data, err := utils.DecodeDataURI(media.URI)
	if err != nil {
		api.RespondWithError(c, apperrors.InternalError("preview", err))
		return
	}

	hash := utils.ContentHash(data)
	c.Header("ETag", `"`+hash+`"`)
	c.Header("Cache-Control", "private, no-cache")
	if etagMatches(c.GetHeader("If-None-Match"), hash) {
		c.Status(http.StatusNotModified)
		return
	}

	h.logger.Debug("serving preview",
		"media_type", media.MediaType,
		"size", len(data),
		"etag", utils.TruncateHash(hash, 12))

	if err := utils.ServeBytesWithRange(c.Writer, c.Request, data, media.MediaType); err != nil {
		h.logger.Debug("preview write interrupted", "error", err)
	}
}

// etagMatches reports whether an If-None-Match header names hash. Weak
// validators and lists are accepted; anything that is not one of our
// content hashes is ignored.
func etagMatches(header, hash string) bool {
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" {
			return true
		}
		tag = strings.Trim(strings.TrimPrefix(tag, "W/"), `"`)
		if utils.ValidateHash(tag) && tag == hash {
			return true
		}
	}
	return false
}
