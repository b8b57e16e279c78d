package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/flightservice/internal/auth"
	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/service/flights"
	"github.com/gin-gonic/gin"
)

type FlightHandler struct {
	service flights.FlightUseCase
}

func NewFlightHandler(service flights.FlightUseCase) *FlightHandler {
	return &FlightHandler{service: service}
}

// Register mounts the flight routes. The group must already carry the auth
// middleware.
func (h *FlightHandler) Register(router *gin.RouterGroup) {
	g := router.Group("/flights")
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.GET("/mine", auth.Require(auth.RoleManager), h.mine)
	g.GET("/:id", h.get)
	g.POST("", auth.Require(auth.RoleManager), h.create)
	g.PUT("/:id", auth.Require(auth.RoleManager), h.update)
	g.POST("/:id/approve", auth.Require(auth.RoleAdmin), h.approve)
	g.POST("/:id/reject", auth.Require(auth.RoleAdmin), h.reject)
	g.POST("/:id/cancel", auth.Require(auth.RoleAdmin), h.cancel)
	g.DELETE("/:id", auth.Require(auth.RoleAdmin), h.delete)

	router.POST("/reports/:type", auth.Require(auth.RoleAdmin), h.report)
}

func (h *FlightHandler) list(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), domain.FlightStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightListResponse(list))
}

func (h *FlightHandler) search(c *gin.Context) {
	var filter domain.FlightFilter
	filter.Name = c.Query("name")
	if v := c.Query("airline_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(c, domain.Validation("invalid airline_id"))
			return
		}
		filter.AirlineID = id
	}
	var ok bool
	if filter.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if filter.To, ok = queryTime(c, "to"); !ok {
		return
	}

	list, err := h.service.Search(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightListResponse(list))
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(c *gin.Context, name string) (time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	writeError(c, domain.Validation("invalid "+name+" time"))
	return time.Time{}, false
}

func (h *FlightHandler) mine(c *gin.Context) {
	id, _ := auth.Current(c)
	list, err := h.service.ByCreator(c.Request.Context(), id.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightListResponse(list))
}

func (h *FlightHandler) get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	flight, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightDetailsResponse(*flight))
}

func (h *FlightHandler) create(c *gin.Context) {
	var req flightRequest
	if !bindJSON(c, &req) {
		return
	}
	caller, _ := auth.Current(c)
	flight, err := h.service.Create(c.Request.Context(), caller.UserID, req.draft())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newFlightResponse(*flight))
}

func (h *FlightHandler) update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req flightRequest
	if !bindJSON(c, &req) {
		return
	}
	caller, _ := auth.Current(c)
	flight, err := h.service.Update(c.Request.Context(), id, caller.UserID, req.draft())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightResponse(*flight))
}

func (h *FlightHandler) approve(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	flight, err := h.service.Approve(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightResponse(*flight))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *FlightHandler) reject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if !bindJSON(c, &req) {
		return
	}
	flight, err := h.service.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightResponse(*flight))
}

func (h *FlightHandler) cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := cancelResponse{
		Flight:  newFlightResponse(*result.Flight),
		Refunds: make([]refundResponse, 0, len(result.Refunds)),
		Failed:  make([]refundResponse, 0, len(result.Failed)),
	}
	for _, r := range result.Refunds {
		resp.Refunds = append(resp.Refunds, refundResponse{UserID: r.UserID, TicketID: r.TicketID, Amount: fromCents(r.AmountCents)})
	}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, refundResponse{UserID: f.UserID, TicketID: f.TicketID, Amount: fromCents(f.AmountCents), Reason: f.Reason})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FlightHandler) delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FlightHandler) report(c *gin.Context) {
	reportType, err := flights.ParseReportType(c.Param("type"))
	if err != nil {
		writeError(c, err)
		return
	}
	caller, _ := auth.Current(c)
	rows, err := h.service.Report(c.Request.Context(), caller.UserID, reportType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"report_type": reportType, "rows": rows, "emailed": true})
}
