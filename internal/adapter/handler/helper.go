package handler

import (
	stdErrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/internal/adapter/dto/common"
	"github.com/johnquangdev/meeting-minutes/internal/usecase/pipeline"
)

// getRequestID tries to read X-Request-ID from the request or the response
func getRequestID(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

// HandleSuccess writes a standardized 200 response using provided logger
func HandleSuccess(logger *zap.Logger, c echo.Context, data interface{}) error {
	return respond(logger, c, http.StatusOK, data)
}

// HandleAccepted writes a standardized 202 response for work started in the background
func HandleAccepted(logger *zap.Logger, c echo.Context, data interface{}) error {
	return respond(logger, c, http.StatusAccepted, data)
}

func respond(logger *zap.Logger, c echo.Context, status int, data interface{}) error {
	resp := common.SuccessResponse{
		Code:    int(errors.ErrorCode_HTTP_OK),
		Message: "success",
		Data:    data,
	}

	if logger != nil {
		logger.Info("http.response.success",
			zap.String("request_id", getRequestID(c)),
			zap.String("path", c.Path()),
			zap.Int("status", status),
		)
	}

	return c.JSON(status, resp)
}

// HandleError centralizes error handling and logging using provided logger
func HandleError(logger *zap.Logger, c echo.Context, err error) error {
	reqID := getRequestID(c)

	var appErr errors.AppError
	if stdErrors.As(err, &appErr) {
		if logger != nil {
			logger.Error("http.response.error",
				zap.String("request_id", reqID),
				zap.String("path", c.Path()),
				zap.Any("app_code", appErr.Code),
				zap.Error(err),
			)
		}

		info := ""
		if appErr.Raw != nil {
			info = appErr.Raw.Error()
		}

		body := common.ErrorResponse{
			Code:    appErr.Code,
			Message: appErr.Message,
			Info:    info,
			Details: appErr.Details,
		}

		return c.JSON(appErr.HTTPCode, body)
	}

	if logger != nil {
		logger.Error("http.response.error",
			zap.String("request_id", reqID),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	body := common.ErrorResponse{
		Code:    errors.ErrorCode_INTERNAL,
		Message: "Internal server error",
		Info:    err.Error(),
	}

	return c.JSON(http.StatusInternalServerError, body)
}

// toAppError maps pipeline sentinel errors to their HTTP form
func toAppError(err error, jobID string) error {
	switch {
	case stdErrors.Is(err, pipeline.ErrNotFound):
		return errors.ErrJobNotFound(jobID)
	case stdErrors.Is(err, pipeline.ErrRunActive):
		return errors.ErrJobAlreadyRunning(jobID)
	case stdErrors.Is(err, pipeline.ErrTerminal):
		return errors.ErrJobTerminal(jobID, "")
	case stdErrors.Is(err, pipeline.ErrTranscriptNotReady):
		return errors.ErrTranscriptNotReady(jobID)
	}

	var appErr errors.AppError
	if stdErrors.As(err, &appErr) {
		return appErr
	}
	return errors.ErrInternal(err)
}
