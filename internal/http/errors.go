package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/extraction"
	"github.com/fyrsmithlabs/reqengine/internal/pipeline"
	"github.com/fyrsmithlabs/reqengine/internal/session"
)

// httpError maps a service error to a response. Unexpected errors are
// logged and reported without detail.
func (s *Server) httpError(c echo.Context, err error) error {
	var failure *extraction.Failure
	switch {
	case errors.Is(err, session.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrEmptyText):
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	case errors.As(err, &failure), errors.Is(err, extraction.ErrNoUseCases):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "the model produced no usable use case")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
	}
	s.logger.Error(c.Request().Context(), "request failed",
		zap.String("route", c.Path()),
		zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
