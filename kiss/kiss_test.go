package kiss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncapsulateEmbeddedFend(t *testing.T) {
	// spec.md §8 scenario 5.
	in := []byte{0x00, 0xC0, 0xDB, 0x42}
	want := []byte{0xC0, 0x00, 0xDB, 0xDC, 0xDB, 0xDD, 0x42, 0xC0}
	got := Encapsulate(in)
	assert.Equal(t, want, got)

	back, err := Unwrap(got)
	require.NoError(t, err)
	assert.Equal(t, in, back)
}

func TestUnwrapRoundtripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, MaxFrameLen).Draw(t, "n")
		in := make([]byte, n)
		for i := range in {
			in[i] = byte(rapid.IntRange(0, 255).Draw(t, "b"))
		}
		framed := Encapsulate(in)
		out, err := Unwrap(framed)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}

func TestUnwrapMissingTrailingFend(t *testing.T) {
	_, err := Unwrap([]byte{0xC0, 0x01, 0x02})
	assert.Error(t, err)
}

func TestUnwrapBadEscapeContinues(t *testing.T) {
	// FESC followed by something other than TFEND/TFESC: drop the bad pair,
	// keep decoding (spec.md §4.1).
	framed := []byte{0xC0, 0x01, 0xDB, 0x99, 0x02, 0xC0}
	out, err := Unwrap(framed)
	assert.ErrorIs(t, err, ErrBadEscape)
	assert.Equal(t, []byte{0x01, 0x02}, out)
}

type fakeSender struct{ sent [][]byte }

func (f *fakeSender) Send(raw []byte) error {
	f.sent = append(f.sent, append([]byte(nil), raw...))
	return nil
}

type fakeDispatcher struct {
	dataCh  uint8
	data    []byte
	paramCh uint8
	param   Command
	value   byte
	hwCh    uint8
	hwText  string
}

func (f *fakeDispatcher) Data(channel uint8, payload []byte) error {
	f.dataCh, f.data = channel, payload
	return nil
}
func (f *fakeDispatcher) Param(channel uint8, cmd Command, value byte) error {
	f.paramCh, f.param, f.value = channel, cmd, value
	return nil
}
func (f *fakeDispatcher) SetHardware(channel uint8, text string, reply Sender) error {
	f.hwCh, f.hwText = channel, text
	return nil
}

func TestSessionDataDispatch(t *testing.T) {
	sender := &fakeSender{}
	disp := &fakeDispatcher{}
	s := NewSession(sender, disp)

	frame := EncodeData(2, []byte{0xAA, 0xBB})
	s.Feed(frame)

	assert.Equal(t, uint8(2), disp.dataCh)
	assert.Equal(t, []byte{0xAA, 0xBB}, disp.data)
}

func TestSessionParamRejectsEmptyPayload(t *testing.T) {
	sender := &fakeSender{}
	disp := &fakeDispatcher{}
	var gotErr error
	s := NewSession(sender, disp)
	s.OnError = func(err error) { gotErr = err }

	typed := []byte{MakeTypeIndicator(0, CmdTXDelay)}
	s.Feed(Encapsulate(typed))

	assert.Error(t, gotErr)
}

func TestSessionNoiseRestart(t *testing.T) {
	sender := &fakeSender{}
	disp := &fakeDispatcher{}
	s := NewSession(sender, disp)

	s.Feed([]byte("ReStArT\r"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []byte{FEND, FEND}, sender.sent[0])
}

func TestSessionNoiseOther(t *testing.T) {
	sender := &fakeSender{}
	disp := &fakeDispatcher{}
	s := NewSession(sender, disp)

	s.Feed([]byte("hello\r"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []byte("\r\ncmd:"), sender.sent[0])
}
