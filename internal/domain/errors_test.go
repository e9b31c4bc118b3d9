package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "invalid_request",
			err:  NewInvalidRequest("bad input"),
			want: KindInvalidRequest,
		},
		{
			name: "not_found",
			err:  NewNotFound("missing"),
			want: KindNotFound,
		},
		{
			name: "business_rule",
			err:  NewBusinessRule(CodeCurrencyNotEnabled, "disabled"),
			want: KindBusinessRule,
		},
		{
			name: "provider_unavailable",
			err:  NewProviderUnavailable("timeout", nil),
			want: KindProviderUnavailable,
		},
		{
			name: "wrapped_app_error",
			err:  fmt.Errorf("outer: %w", NewImportSanity("too big")),
			want: KindImportSanity,
		},
		{
			name: "foreign_error_defaults_to_internal",
			err:  errors.New("plain"),
			want: KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeDuplicateCurrencyCode,
		CodeOf(NewBusinessRule(CodeDuplicateCurrencyCode, "dup")))
	assert.Empty(t, CodeOf(errors.New("plain")))
	assert.Empty(t, CodeOf(NewInvalidRequest("no code")))
}

func TestNewStartDateOutOfRange(t *testing.T) {
	earliest := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	err := NewStartDateOutOfRange(earliest)

	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, KindBusinessRule, appErr.Kind)
	assert.Equal(t, CodeStartDateOutOfRange, appErr.Code)
	assert.Equal(t, earliest, appErr.Earliest)
	assert.Contains(t, appErr.Message, "2020-03-02")
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewProviderUnavailable("provider request failed", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection refused")
}
