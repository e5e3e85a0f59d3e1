package dlsm

import "fmt"

// ProtoError is the AX.25 protocol error taxonomy (spec.md §7: "numbered
// A-U per AX.25 spec"). These are logged, not fatal; recovery action is
// typically establish-data-link and a transition back to state 1 or 5.
type ProtoError byte

const (
	ErrF ProtoError = 'F' // UA received without F=1, or UA unexpected in this state
	ErrA ProtoError = 'A' // DM received while disconnected/awaiting connection (ignored)
	ErrB ProtoError = 'B' // unexpected UA received
	ErrC ProtoError = 'C' // unexpected DM received
	ErrD ProtoError = 'D' // SABM/SABME received while Connected/TimerRecovery (link reset)
	ErrE ProtoError = 'E' // DISC received while disconnected (respond DM)
	ErrK ProtoError = 'K' // unexpected information frame received
	ErrL ProtoError = 'L' // control field invalid or not implemented
	ErrM ProtoError = 'M' // information field too long
	ErrN ProtoError = 'N' // N(R) not in the range V(A) through V(S) inclusive
	ErrO ProtoError = 'O' // length of frame incorrect for frame type
	ErrP ProtoError = 'P' // N(S) out of the expected range
	ErrQ ProtoError = 'Q' // UI response received, or UI command with P=1
	ErrS ProtoError = 'S' // frame rejected, FRMR response sent or received
	ErrT ProtoError = 'T' // no response to enquiry (T1 exhausted in TimerRecovery)
	ErrU ProtoError = 'U' // FRMR received from peer
	ErrV ProtoError = 'V' // N(R) error, re-establishing
	ErrW ProtoError = 'W' // retries exceeded, link reset
)

func (e ProtoError) Error() string {
	return fmt.Sprintf("ax25 protocol error %c", byte(e))
}
