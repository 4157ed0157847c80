package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, debug := range []bool{true, false} {
		logger, err := New(debug)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.Equal(t, debug, logger.Core().Enabled(-1))
		_ = logger.Sync()
	}
}

func TestMust(t *testing.T) {
	assert.NotNil(t, Must(false))
}
