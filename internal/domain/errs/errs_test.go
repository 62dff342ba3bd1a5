package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicKeepsCode(t *testing.T) {
	err := fmt.Errorf("select channel: %w", ErrNotChannelMember)

	assert.Equal(t, CodeNotChannelMember, CodeOf(err))
	assert.True(t, errors.Is(err, ErrNotChannelMember))
	assert.False(t, errors.Is(err, ErrChannelNotFound))
}

func TestPublicHidesUnknown(t *testing.T) {
	pub := Public(errors.New("pq: connection refused"))

	assert.Equal(t, CodeInternal, pub.Code)
	assert.Equal(t, "internal error", pub.Message)
}

func TestInvalidRequestMatchesByCode(t *testing.T) {
	err := InvalidRequest("channel_id is required")

	assert.True(t, errors.Is(err, InvalidRequest("other")))
	assert.Equal(t, "channel_id is required", err.Error())
}
