package api

import (
	"net/http"

	"github.com/Domenick1991/flightservice/internal/auth"
	"github.com/Domenick1991/flightservice/internal/service/purchase"
	"github.com/gin-gonic/gin"
)

type TicketHandler struct {
	service purchase.PurchaseUseCase
}

func NewTicketHandler(service purchase.PurchaseUseCase) *TicketHandler {
	return &TicketHandler{service: service}
}

func (h *TicketHandler) Register(router *gin.RouterGroup) {
	g := router.Group("/tickets", auth.Require(auth.RoleUser))
	g.POST("", h.purchase)
	g.GET("/mine", h.mine)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.cancel)

	router.GET("/flights/:id/tickets", auth.Require(auth.RoleAdmin, auth.RoleManager), h.byFlight)
}

type purchaseRequest struct {
	FlightID int64 `json:"flight_id"`
}

// purchase answers 202 once the purchase is queued; the result is pushed on
// the caller's private channel.
func (h *TicketHandler) purchase(c *gin.Context) {
	var req purchaseRequest
	if !bindJSON(c, &req) {
		return
	}
	caller, _ := auth.Current(c)
	accepted, err := h.service.Purchase(c.Request.Context(), purchase.PurchaseInput{
		FlightID: req.FlightID,
		UserID:   caller.UserID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"attempt_id": accepted.AttemptID,
		"flight_id":  accepted.FlightID,
		"message":    "purchase accepted for processing",
	})
}

func (h *TicketHandler) mine(c *gin.Context) {
	caller, _ := auth.Current(c)
	tickets, err := h.service.ListUserTickets(c.Request.Context(), caller.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, newTicketResponse(t))
	}
	c.JSON(http.StatusOK, out)
}

func (h *TicketHandler) get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	caller, _ := auth.Current(c)
	ticket, err := h.service.GetTicket(c.Request.Context(), id, caller.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTicketResponse(*ticket))
}

// byFlight lists a flight's passengers for admins and for the manager who
// created the flight.
func (h *TicketHandler) byFlight(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	caller, _ := auth.Current(c)
	tickets, err := h.service.ListFlightTickets(c.Request.Context(), id, purchase.Viewer{
		UserID: caller.UserID,
		Admin:  caller.Role == auth.RoleAdmin,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, newTicketResponse(t))
	}
	c.JSON(http.StatusOK, out)
}

func (h *TicketHandler) cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	caller, _ := auth.Current(c)
	ticket, err := h.service.CancelTicket(c.Request.Context(), id, caller.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTicketResponse(*ticket))
}
