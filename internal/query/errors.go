// internal/query/errors.go
package query

import (
	"errors"
	"fmt"
	"net/http"

	"collision-hub/internal/apperr"
	"collision-hub/internal/utils"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// ErrorBody is the JSON error envelope of every failed request.
type ErrorBody struct {
	Status  string `json:"status"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

func errorResponse(code int, message string) ErrorBody {
	return ErrorBody{Status: "error", Code: code, Message: message}
}

// CustomHTTPErrorHandler is the central error handler for the Echo application.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	log := utils.Logger.WithFields(logrus.Fields{
		"method": c.Request().Method,
		"path":   c.Request().URL.Path,
	})

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		if internalErr := appErr.Unwrap(); internalErr != nil {
			log.WithError(internalErr).WithField("code", appErr.Code).Debug("Request rejected")
		}
		_ = c.JSON(appErr.Status, errorResponse(appErr.Code, appErr.Message))
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			msg := fmt.Sprintf("Unknown route %s %s", c.Request().Method, c.Request().URL.Path)
			_ = c.JSON(http.StatusBadRequest, errorResponse(apperr.CodeIncorrectInput, msg))
		default:
			_ = c.JSON(httpErr.Code, errorResponse(0, fmt.Sprint(httpErr.Message)))
		}
		return
	}

	log.WithError(err).WithField("error_type", fmt.Sprintf("%T", err)).Error("Unhandled error occurred")
	_ = c.JSON(http.StatusInternalServerError, errorResponse(0, "An unexpected internal error occurred."))
}
