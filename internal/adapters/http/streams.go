package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/streamloop/streamloop/internal/domain"
	"github.com/streamloop/streamloop/internal/store"
)

// StreamsController exposes the stream metadata CRUD. Pure
// bookkeeping: nothing here touches the relay's media path.
type StreamsController struct {
	Store store.Store
}

type startStreamRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (ctl *StreamsController) Start(c *gin.Context) {
	var req startStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	st, err := domain.NewStream(c.GetString("identity"), req.Title, req.Description)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ctl.Store.CreateStream(st); err != nil {
		log.Error().Err(err).Str("module", "http").Msg("create stream")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start stream"})
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (ctl *StreamsController) End(c *gin.Context) {
	st, err := ctl.Store.EndStream(c.GetString("identity"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active stream found"})
			return
		}
		log.Error().Err(err).Str("module", "http").Msg("end stream")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end stream"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (ctl *StreamsController) Active(c *gin.Context) {
	streams, err := ctl.Store.ActiveStreams()
	if err != nil {
		log.Error().Err(err).Str("module", "http").Msg("list streams")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch active streams"})
		return
	}
	if streams == nil {
		streams = []domain.Stream{}
	}
	c.JSON(http.StatusOK, streams)
}
