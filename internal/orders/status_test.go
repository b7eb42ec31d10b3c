package orders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusCreated, StatusPaying, true},
		{StatusCreated, StatusCanceled, true},
		{StatusPaying, StatusCompleted, true},
		{StatusPaying, StatusCanceled, true},
		{StatusCreated, StatusCompleted, false},
		{StatusCompleted, StatusCanceled, false},
		{StatusCompleted, StatusPaying, false},
		{StatusCanceled, StatusPaying, false},
		{StatusCanceled, StatusCreated, false},
		{StatusPaying, StatusCreated, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTransitionIllegalState(t *testing.T) {
	_, err := StatusCompleted.Transition(StatusCanceled)
	assert.True(t, errors.Is(err, ErrIllegalOrderState))

	next, err := StatusPaying.Transition(StatusCanceled)
	assert.NoError(t, err)
	assert.Equal(t, StatusCanceled, next)
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusCreated.Terminal())
	assert.False(t, StatusPaying.Terminal())
}
