package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	cause := fmt.Errorf("line 3: bad quote")

	assert.Equal(t, "[PARSING] read header: line 3: bad quote", NewParsingError("read header", cause).Error())
	assert.Equal(t, "[RENDER] write svg chart", NewRenderError("write svg chart", nil).Error())
}

func TestAppError_Unwrap(t *testing.T) {
	sentinel := errors.New("disk full")
	err := fmt.Errorf("persist: %w", NewStorageError("save selection", sentinel))

	assert.True(t, errors.Is(err, sentinel))

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeStorage, appErr.Type)
}

func TestAppError_WithContext(t *testing.T) {
	err := (&AppError{Type: ErrTypeConfig, Message: "bad port"}).
		WithContext("field", "server.port").
		WithContext("value", 0)

	assert.Equal(t, "server.port", err.Context["field"])
	assert.Equal(t, 0, err.Context["value"])
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err  *AppError
		want ErrorType
	}{
		{NewParsingError("x", nil), ErrTypeParsing},
		{NewStorageError("x", nil), ErrTypeStorage},
		{NewConfigError("x", nil), ErrTypeConfig},
		{NewMessagingError("x", nil), ErrTypeMessaging},
		{NewRenderError("x", nil), ErrTypeRender},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Type)
			assert.NotNil(t, tt.err.Context)
		})
	}
}
