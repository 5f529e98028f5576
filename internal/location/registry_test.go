package location

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// A heartbeat and an availability toggle may race; each write must touch only
// the columns it owns so neither silently reverts the other.

func TestHeartbeatColumnsExcludeAvailability(t *testing.T) {
	cols := heartbeatColumns(5.6037, -0.1870, 270, time.Now())

	assert.NotContains(t, cols, "is_available")
	for _, col := range []string{"latitude", "longitude", "heading", "last_seen"} {
		assert.Contains(t, cols, col)
	}
}

func TestAvailabilityColumnsExcludeCoordinates(t *testing.T) {
	cols := availabilityColumns(false, time.Now())

	for _, col := range []string{"latitude", "longitude", "heading"} {
		assert.NotContains(t, cols, col)
	}
	assert.Contains(t, cols, "is_available")
	assert.Contains(t, cols, "last_seen")
}
