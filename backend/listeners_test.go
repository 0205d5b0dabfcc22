package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListenersAddNotifyRemove(t *testing.T) {
	l := NewListeners()

	var got []AuthEvent
	removeA, first := l.Add("tok", func(c AuthChange) { got = append(got, c.Event) })
	assert.True(t, first)
	removeB, first := l.Add("tok", func(c AuthChange) { got = append(got, c.Event) })
	assert.False(t, first)
	l.Add("other", func(AuthChange) { t.Error("wrong key notified") })
	assert.Equal(t, 3, l.Count())

	l.Notify("tok", AuthChange{Event: EventSignedOut})
	assert.Equal(t, []AuthEvent{EventSignedOut, EventSignedOut}, got)

	assert.False(t, removeA())
	assert.False(t, removeA(), "second remove is a no-op")
	assert.True(t, removeB())
	assert.Equal(t, 1, l.Count())
}

func TestListenersMayRemoveThemselves(t *testing.T) {
	l := NewListeners()
	calls := 0
	var remove func() bool
	remove, _ = l.Add("tok", func(AuthChange) {
		calls++
		remove()
	})

	l.Notify("tok", AuthChange{Event: EventTokenExpired})
	l.Notify("tok", AuthChange{Event: EventTokenExpired})
	assert.Equal(t, 1, calls)
	assert.Zero(t, l.Count())
}
