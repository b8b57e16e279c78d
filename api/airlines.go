package api

import (
	"net/http"

	"github.com/Domenick1991/flightservice/internal/auth"
	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/service/airlines"
	"github.com/gin-gonic/gin"
)

type AirlineHandler struct {
	service airlines.AirlineUseCase
}

func NewAirlineHandler(service airlines.AirlineUseCase) *AirlineHandler {
	return &AirlineHandler{service: service}
}

func (h *AirlineHandler) Register(router *gin.RouterGroup) {
	g := router.Group("/airlines")
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("", auth.Require(auth.RoleAdmin), h.create)
	g.PUT("/:id", auth.Require(auth.RoleAdmin), h.update)
	g.DELETE("/:id", auth.Require(auth.RoleAdmin), h.delete)
}

func (h *AirlineHandler) list(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]airlineResponse, 0, len(list))
	for _, a := range list {
		out = append(out, newAirlineResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

func (h *AirlineHandler) get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAirlineResponse(*a))
}

func (h *AirlineHandler) create(c *gin.Context) {
	var in domain.AirlineInput
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newAirlineResponse(*a))
}

func (h *AirlineHandler) update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in domain.AirlineInput
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.service.Update(c.Request.Context(), id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAirlineResponse(*a))
}

func (h *AirlineHandler) delete(c *gin.Context) {
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
