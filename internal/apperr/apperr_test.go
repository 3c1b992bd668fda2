package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/hugh/go-roster/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"nil", nil, ""},
		{"taxonomy error", apperr.Forbidden("nope"), apperr.KindForbidden},
		{"wrapped taxonomy error", fmt.Errorf("ctx: %w", apperr.Gone("accepted")), apperr.KindGone},
		{"plain error", errors.New("connection reset"), apperr.KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	t.Run("keeps taxonomy errors", func(t *testing.T) {
		orig := apperr.Conflict("duplicate invite")
		assert.Same(t, orig, apperr.Wrap(orig, "creating invite"))
	})

	t.Run("classifies infrastructure failures", func(t *testing.T) {
		cause := errors.New("disk full")
		err := apperr.Wrap(cause, "creating invite")
		assert.Equal(t, apperr.KindUnexpected, apperr.KindOf(err))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "An unexpected error occurred", apperr.Message(err))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, apperr.Wrap(nil, "noop"))
	})
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("accept: %w", apperr.Gone("invite already accepted"))
	assert.ErrorIs(t, err, apperr.ErrGone)
	assert.NotErrorIs(t, err, apperr.ErrConflict)
}

func TestWithDetail(t *testing.T) {
	base := apperr.QuotaExceeded("member limit reached")
	withDetail := base.WithDetail(map[string]int{"members": 25})

	assert.Nil(t, base.Detail)
	assert.Equal(t, map[string]int{"members": 25}, apperr.DetailOf(withDetail))
	assert.Equal(t, "member limit reached", apperr.Message(withDetail))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, apperr.HTTPStatus(apperr.KindUnauthorized))
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(apperr.KindForbidden))
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(apperr.KindNotFound))
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(apperr.KindConflict))
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(apperr.KindQuotaExceeded))
	assert.Equal(t, http.StatusGone, apperr.HTTPStatus(apperr.KindGone))
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(apperr.KindValidation))
	assert.Equal(t, http.StatusServiceUnavailable, apperr.HTTPStatus(apperr.KindUnavailable))
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(apperr.KindUnexpected))
}
