package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappersKeepSentinelIdentity(t *testing.T) {
	err := BadRequest("missing field %s", "roomId")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Contains(t, err.Error(), "missing field roomId")

	assert.ErrorIs(t, Unauthorized("nope"), ErrUnauthorized)
	assert.ErrorIs(t, NotFound("room %s", "x"), ErrNotFound)
	assert.ErrorIs(t, Internal("boom"), ErrInternal)
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{BadRequest("x"), http.StatusBadRequest},
		{Unauthorized("x"), http.StatusUnauthorized},
		{NotFound("x"), http.StatusNotFound},
		{Internal("x"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
		{fmt.Errorf("outer: %w", NotFound("inner")), http.StatusNotFound},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StatusCode(c.err), c.err.Error())
	}
}
