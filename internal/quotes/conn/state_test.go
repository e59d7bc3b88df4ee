package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		to   State
		ok   bool
	}{
		{StateIdle, EventDial, StateConnecting, true},
		{StateClosed, EventDial, StateConnecting, true},
		{StateConnecting, EventOpen, StateOpen, true},
		{StateConnecting, EventClose, StateClosed, true},
		{StateOpen, EventClose, StateClosed, true},
		{StateIdle, EventFatal, StateClosed, true},
		{StateOpen, EventFatal, StateClosed, true},

		// 同一时刻只能有一个活跃会话
		{StateConnecting, EventDial, StateConnecting, false},
		{StateOpen, EventDial, StateOpen, false},
		{StateIdle, EventOpen, StateIdle, false},
		{StateOpen, EventOpen, StateOpen, false},
		{StateClosed, EventClose, StateClosed, false},
		{StateIdle, EventClose, StateIdle, false},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.ev)
		assert.Equal(t, tc.to, got, "%s --%s-->", tc.from, tc.ev)
		if tc.ok {
			assert.NoError(t, err)
		} else {
			var te *TransitionError
			assert.ErrorAs(t, err, &te)
		}
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.True(t, StateConnecting.Active())
	assert.False(t, StateClosed.Active())
}
