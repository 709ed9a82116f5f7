package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"dashboard", RoleDashboard},
		{"Dashboard", RoleDashboard},
		{"  Telemetry ", RoleTelemetry},
		{"motor-control", RoleMotorControl},
		{"Motor Control", RoleMotorControl},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("MOTOR_CONTROL")
	require.NoError(t, err)
	assert.Equal(t, RoleMotorControl, r)
	assert.True(t, r.IsKnown())

	r, err = ParseRole("pit_crew")
	require.NoError(t, err)
	assert.False(t, r.IsKnown())

	_, err = ParseRole("   ")
	require.Error(t, err)
	assert.True(t, IsErrCode(err, ErrCodeInvalidArgument))

	_, err = ParseRole("dash/board")
	require.Error(t, err)
}

func TestErrorCodes(t *testing.T) {
	base := NewError(ErrCodeClosed, "session is closed")
	wrapped := fmt.Errorf("dispatch: %w", base)

	assert.True(t, IsErrCode(base, ErrCodeClosed))
	assert.True(t, IsErrCode(wrapped, ErrCodeClosed))
	assert.False(t, IsErrCode(wrapped, ErrCodeConnectionLost))
	assert.False(t, IsErrCode(errors.New("plain"), ""))
	assert.Equal(t, "", GetErrorCode(nil))

	cause := errors.New("broken pipe")
	err := WrapError(ErrCodeConnectionLost, "write failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "CONNECTION_LOST: write failed: broken pipe", err.Error())
}

func TestSessionStateTransitions(t *testing.T) {
	assert.True(t, SessionStateConnecting.CanTransition(SessionStateRegistered))
	assert.True(t, SessionStateRegistered.CanTransition(SessionStateActive))
	assert.True(t, SessionStateActive.CanTransition(SessionStateClosing))
	assert.True(t, SessionStateClosing.CanTransition(SessionStateClosed))
	assert.True(t, SessionStateConnecting.CanTransition(SessionStateClosing))

	assert.False(t, SessionStateActive.CanTransition(SessionStateRegistered))
	assert.False(t, SessionStateClosing.CanTransition(SessionStateActive))
	for _, next := range []SessionState{SessionStateConnecting, SessionStateRegistered, SessionStateActive, SessionStateClosing, SessionStateClosed} {
		assert.False(t, SessionStateClosed.CanTransition(next), "closed -> %s", next)
	}

	assert.True(t, SessionStateActive.IsLive())
	assert.False(t, SessionStateClosing.IsLive())
}

func TestMessageRoles(t *testing.T) {
	msg := NewMessage("Telemetry", "Dashboard", "telemetry:30:10,20,30")
	assert.Equal(t, RoleTelemetry, msg.SenderRole())
	assert.Equal(t, RoleDashboard, msg.RecipientRole())

	c := msg.WithSender("telemetry")
	assert.Equal(t, "Telemetry", msg.Sender)
	assert.Equal(t, "telemetry", c.Sender)
	assert.Equal(t, msg.Command, c.Command)
}

func TestMessageValidate(t *testing.T) {
	assert.NoError(t, NewMessage("dashboard", "motor_control", "motor:1").Validate())
	assert.True(t, IsErrCode(NewMessage("dashboard", "  ", "x").Validate(), ErrCodeInvalidArgument))

	var nilMsg *Message
	assert.Error(t, nilMsg.Validate())
}
