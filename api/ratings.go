package api

import (
	"net/http"

	"github.com/Domenick1991/flightservice/internal/auth"
	"github.com/Domenick1991/flightservice/internal/service/ratings"
	"github.com/gin-gonic/gin"
)

type RatingHandler struct {
	service ratings.RatingUseCase
}

func NewRatingHandler(service ratings.RatingUseCase) *RatingHandler {
	return &RatingHandler{service: service}
}

func (h *RatingHandler) Register(router *gin.RouterGroup) {
	router.POST("/flights/:id/ratings", auth.Require(auth.RoleUser), h.rate)
	router.GET("/flights/:id/ratings", h.byFlight)
	router.GET("/ratings", auth.Require(auth.RoleAdmin), h.all)
	router.GET("/ratings/mine", auth.Require(auth.RoleUser), h.mine)
}

type rateRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

func (h *RatingHandler) rate(c *gin.Context) {
	flightID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req rateRequest
	if !bindJSON(c, &req) {
		return
	}
	caller, _ := auth.Current(c)
	rating, err := h.service.Rate(c.Request.Context(), ratings.RateInput{
		FlightID: flightID,
		UserID:   caller.UserID,
		Score:    req.Score,
		Comment:  req.Comment,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRatingResponse(*rating))
}

func (h *RatingHandler) byFlight(c *gin.Context) {
	flightID, ok := pathID(c, "id")
	if !ok {
		return
	}
	fr, err := h.service.ListByFlight(c.Request.Context(), flightID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"flight_id":      fr.FlightID,
		"count":          fr.Count,
		"average_rating": fr.Average,
		"ratings":        newRatingResponses(fr.Ratings),
	})
}

func (h *RatingHandler) all(c *gin.Context) {
	list, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRatingResponses(list))
}

func (h *RatingHandler) mine(c *gin.Context) {
	caller, _ := auth.Current(c)
	list, err := h.service.ListByUser(c.Request.Context(), caller.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRatingResponses(list))
}
