package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndMappings(t *testing.T) {
	tcases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"room not found", fmt.Errorf("get room: %w", ErrRoomNotFound), CodeNotFound, http.StatusNotFound},
		{"message not found", ErrMessageNotFound, CodeNotFound, http.StatusNotFound},
		{"empty membership", fmt.Errorf("create: %w", ErrEmptyMembership), CodeInvalidArgument, http.StatusBadRequest},
		{"bad limit", ErrInvalidPagination, CodeInvalidArgument, http.StatusBadRequest},
		{"not subscribed", ErrNotSubscribed, CodeInvalidOperation, http.StatusForbidden},
		{"fixed membership", fmt.Errorf("join: %w", ErrFixedMembership), CodeInvalidOperation, http.StatusForbidden},
		{"expired token", ErrTokenExpired, CodeUnauthorized, http.StatusUnauthorized},
		{"store down", fmt.Errorf("zadd: %w", ErrStoreUnavailable), CodeStoreUnavailable, http.StatusServiceUnavailable},
		{"unknown", New("boom"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, Code(tc.err))
			assert.Equal(t, tc.status, HTTPStatusFromError(tc.err))
		})
	}
}

func TestKindNil(t *testing.T) {
	assert.Nil(t, Kind(nil))
	assert.Nil(t, Kind(New("other")))
	assert.Equal(t, ErrNotFound, Kind(fmt.Errorf("wrapped twice: %w", fmt.Errorf("x: %w", ErrPresenceNotFound))))
}
