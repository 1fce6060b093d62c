package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestAppErrorUnwrapAndStatus(t *testing.T) {
	base := errors.New("dial tcp: timeout")
	err := fmt.Errorf("run agent: %w", UpstreamUnavailable(base))

	require.ErrorIs(t, err, base)
	require.Equal(t, http.StatusBadGateway, StatusOf(err))
	require.Equal(t, UpstreamUnavailableMessage, MessageOf(err))
	require.True(t, IsUpstreamUnavailable(err))
	require.Contains(t, err.Error(), "dial tcp: timeout")
}

func TestValidationHasNoCause(t *testing.T) {
	err := Validation("message is required")
	require.Equal(t, "message is required", err.Error())
	require.Equal(t, http.StatusBadRequest, StatusOf(err))
	require.False(t, IsUpstreamUnavailable(err))
}

func TestWrapRedis(t *testing.T) {
	require.Nil(t, WrapRedis(nil))
	require.Equal(t, http.StatusNotFound, StatusOf(WrapRedis(redis.Nil)))
	require.Equal(t, http.StatusBadGateway, StatusOf(WrapRedis(errors.New("conn refused"))))
}

func TestPlainErrorsMapToSystemMessage(t *testing.T) {
	err := errors.New("boom")
	require.Equal(t, http.StatusInternalServerError, StatusOf(err))
	require.Equal(t, SystemErrorMessage, MessageOf(err))
}
