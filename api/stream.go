package api

import (
	"strings"
	"time"

	"github.com/Domenick1991/flightservice/internal/auth"
	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/realtime"
	"github.com/gin-gonic/gin"
)

type StreamHandler struct {
	hub       *realtime.Hub
	keepAlive time.Duration
}

func NewStreamHandler(hub *realtime.Hub, keepAlive time.Duration) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	return &StreamHandler{hub: hub, keepAlive: keepAlive}
}

func (h *StreamHandler) Register(router *gin.RouterGroup) {
	router.GET("/stream", h.stream)
}

// defaultRooms is what a caller joins without asking: the public flight feed,
// their private channel and, for staff, their role room.
func defaultRooms(id auth.Identity) []string {
	rooms := []string{domain.RoomFlights, domain.UserRoom(id.UserID)}
	switch id.Role {
	case auth.RoleAdmin:
		rooms = append(rooms, domain.RoomAdmin)
	case auth.RoleManager:
		rooms = append(rooms, domain.RoomManager)
	}
	return rooms
}

// stream is a Server-Sent-Events feed of the requested rooms
// (?rooms=flights,flight:7).
func (h *StreamHandler) stream(c *gin.Context) {
	caller, _ := auth.Current(c)
	rooms := defaultRooms(caller)
	if q := c.Query("rooms"); q != "" {
		rooms = rooms[:0]
		for _, r := range strings.Split(q, ",") {
			if r = strings.TrimSpace(r); r != "" {
				rooms = append(rooms, r)
			}
		}
	}
	if err := realtime.Authorize(rooms, caller.UserID, string(caller.Role)); err != nil {
		writeError(c, err)
		return
	}

	events, leave := h.hub.Subscribe(rooms...)
	defer leave()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"rooms": rooms})
	c.Writer.Flush()

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
		case e, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(e.Type), e)
		}
		c.Writer.Flush()
	}
}
