// Package handler exposes the recent-contacts module over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"commhistory_backend/internal/recent/service"
	"commhistory_backend/internal/recent/transport"
	"commhistory_backend/platform/httpkit"
	"commhistory_backend/platform/logger"
	"commhistory_backend/platform/runloop"
	"commhistory_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid event id"
)

// Handler handles HTTP requests for recent contacts.
type Handler struct {
	agg    *service.Aggregator
	writer *service.Writer
	loop   *runloop.Loop
	val    *validator.Validator
	log    *logger.Logger
}

// New creates a new recent-contacts handler.
func New(agg *service.Aggregator, writer *service.Writer, loop *runloop.Loop, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{agg: agg, writer: writer, loop: loop, val: val, log: log}
}

// List returns the current aggregated collection.
// GET /api/v1/recent-contacts
func (h *Handler) List(c *gin.Context) {
	var snap transport.SnapshotResponse
	err := h.loop.Do(c.Request.Context(), func() {
		rows := h.agg.Rows()
		snap.Items = make([]transport.RowResponse, 0, len(rows))
		for _, row := range rows {
			snap.Items = append(snap.Items, transport.RowResponse{
				Event:     transport.EventResponseFrom(row.Event.Record()),
				ContactID: row.ContactID.String(),
			})
		}
		snap.Resolving = h.agg.Resolving()
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, snap)
}

// Stream sends structural changes of the collection as server-sent events.
// GET /api/v1/recent-contacts/stream
func (h *Handler) Stream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	obs := newStreamObserver(h.log)
	var resolving bool
	if err := h.loop.Do(c.Request.Context(), func() {
		h.agg.AddObserver(obs)
		resolving = h.agg.Resolving()
	}); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	defer func() {
		// The client is gone by now; detach with a fresh context so the
		// observer never outlives the connection.
		_ = h.loop.Do(context.Background(), func() {
			h.agg.RemoveObserver(obs)
		})
	}()

	c.SSEvent("connected", gin.H{"resolving": resolving})
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case msg, ok := <-obs.ch:
			if !ok {
				return
			}
			c.SSEvent(msg.Type, msg)
			c.Writer.Flush()
		}
	}
}

// Create records a communication event.
// POST /api/v1/events
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rec, err := h.writer.Record(c.Request.Context(), req.ToRecord())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.EventResponseFrom(rec))
}

// Delete removes a stored event.
// DELETE /api/v1/events/:id
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	if err := h.writer.Remove(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"deleted": id.String()})
}
