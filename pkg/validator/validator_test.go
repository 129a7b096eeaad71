package validator

import (
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnquangdev/meeting-minutes/errors"
)

type sample struct {
	Date  string `validate:"omitempty,datetime=2006-01-02"`
	Limit int    `validate:"min=1,max=100"`
	Name  string `validate:"required"`
}

func TestValidateReportsFields(t *testing.T) {
	cv := New()

	require.NoError(t, cv.Validate(&sample{Date: "2024-01-15", Limit: 10, Name: "x"}))

	err := cv.Validate(&sample{Date: "15/01/2024", Limit: 0})
	require.Error(t, err)

	var appErr errors.AppError
	require.True(t, stdErrors.As(err, &appErr))
	assert.Equal(t, errors.ErrorCode_INVALID_ARGUMENT, appErr.Code)
	assert.Equal(t, "must match 2006-01-02", appErr.Details["Date"])
	assert.Equal(t, "must be at least 1", appErr.Details["Limit"])
	assert.Equal(t, "is required", appErr.Details["Name"])
}
