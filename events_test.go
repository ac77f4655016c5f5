package websub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventTypeString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("Listening", Listening.String())
	assert.Equal("Subscribed", Subscribed.String())
	assert.Equal("Unsubscribed", Unsubscribed.String())
	assert.Equal("Denied", Denied.String())
	assert.Equal("Feed", Feed.String())
	assert.Equal("Error", Error.String())
	assert.Equal(InvalidEventString, EventType(255).String())
}

func TestListeners(t *testing.T) {
	var (
		assert = assert.New(t)

		first  int
		second int

		aggregate = Listeners(
			func(*Event) { first++ },
			func(*Event) { second++ },
		)
	)

	aggregate(&Event{Type: Feed})
	assert.Equal(1, first)
	assert.Equal(1, second)

	// an empty aggregate must be callable
	Listeners()(&Event{Type: Feed})
}
