package http

import (
	"net/http"

	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type adminHandlers struct {
	orch *orch.Orchestrator
}

type errorResponse struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func (h *adminHandlers) index(c *gin.Context) {
	c.String(http.StatusOK, "rendezvous signaling server")
}

func (h *adminHandlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *adminHandlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *adminHandlers) resolve(c *gin.Context) (*core.Room, bool) {
	id := domain.RoomID(c.Param("id"))
	room, ok := h.orch.Rooms.Resolve(id)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{
			Code:    domain.CodeRoomNotFound,
			Message: domain.ErrRoomNotFound.Error(),
		})
		return nil, false
	}
	return room, true
}

func (h *adminHandlers) getRoom(c *gin.Context) {
	room, ok := h.resolve(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, core.RoomInfo{ID: room.ID(), MemberCount: room.MemberCount()})
}

func (h *adminHandlers) roomMembers(c *gin.Context) {
	room, ok := h.resolve(c)
	if !ok {
		return
	}
	members := room.Members()
	peers := make([]domain.PeerID, 0, len(members))
	for _, m := range members {
		peers = append(peers, m.ID())
	}
	c.JSON(http.StatusOK, gin.H{"roomId": room.ID(), "peers": peers})
}

func (h *adminHandlers) kickPeer(c *gin.Context) {
	id := domain.PeerID(c.Param("id"))
	if !h.orch.Registry.Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("peer", string(id)).Str("client", c.GetString(clientTokenKey)).Msg("peer kicked")
	c.Status(http.StatusNoContent)
}

func (h *adminHandlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rooms":       h.orch.Rooms.Len(),
		"connections": h.orch.Registry.Len(),
	})
}
