package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"placeserver/models"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Error string `json:"error"`
}

var (
	// Predefined errors
	OKResponse    = Response{}
	BadIDResponse = Response{"invalid id"}
)

// errorResponse maps the models error taxonomy onto HTTP statuses. Anything
// unrecognized gets a generic 500 so store internals never reach the client.
func errorResponse(c *gin.Context, err error) {
	var appErr *models.Error
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, Response{"something went wrong"})
		return
	}
	c.JSON(statusFor(appErr), Response{appErr.Message})
}

func statusFor(err *models.Error) int {
	switch err {
	case models.ErrValidation:
		return http.StatusUnprocessableEntity
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrNotOwner:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func paramID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, BadIDResponse)
		return 0, false
	}
	return id, true
}
