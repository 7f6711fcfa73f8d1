package gnsslink

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gnsslink/internal/serialport"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    Command
		wantErr bool
	}{
		{in: "log version", want: PlainCommand{Text: "log version"}},
		{in: "  unlogall\r\n", want: PlainCommand{Text: "unlogall"}},
		{in: "COM COM1 115200", want: SpeedChangeCommand{Text: "COM COM1 115200", Baud: 115200}},
		{in: "CONFIG COM COM2 9600 N 8 1 460800", want: SpeedChangeCommand{Text: "CONFIG COM COM2 9600 N 8 1 460800", Baud: 460800}},
		{in: "com com1 115200", want: PlainCommand{Text: "com com1 115200"}},
		{in: "COM COM1 fast", wantErr: true},
		{in: "COM COM1 -9600", wantErr: true},
		{in: "COM COM", wantErr: true},
		{in: "", wantErr: true},
		{in: " \t ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Errorf("ParseCommand(%q) error = %v, want ErrInvalidCommand", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand(%q) error = %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseCommand(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
			if got.Line() != strings.TrimSpace(tt.in) {
				t.Errorf("Line() = %q, want %q", got.Line(), strings.TrimSpace(tt.in))
			}
		})
	}
}

func TestSpeedChangeMarker_MatchesSimulator(t *testing.T) {
	assert.Equal(t, SpeedChangeMarker, serialport.SwitchMarker)
}

func TestSendSetting_WritesCRLF(t *testing.T) {
	m, rx, rec := newSimulated(t, 9600, 9600)
	require.NoError(t, m.Connect())

	require.NoError(t, m.SendSetting("log gprmc ontime 1"))
	writes := rx.Writes()
	assert.Equal(t, "log gprmc ontime 1\r\n", string(writes[len(writes)-1].Data))
	assert.Equal(t, 1, rec.count(EventCommandSent))
	assert.Equal(t, 1, rec.count(EventCommandAcked))
}

func TestSendSetting_AckTimeout(t *testing.T) {
	m, rx, rec := newSimulated(t, 9600, 9600)
	require.NoError(t, m.Connect())
	rx.SetMute(true)

	err := m.SendSetting("log version")
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("SendSetting error = %v, want ErrAckTimeout", err)
	}
	assert.True(t, m.IsOpen(), "ack timeout leaves the link open")
	assert.Equal(t, 1, rec.count(EventCommandFailed))
}

func TestSendSetting_NotOpen(t *testing.T) {
	m, rx, _ := newSimulated(t, 9600, 9600)
	if err := m.SendSetting("log version"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SendSetting error = %v, want ErrNotOpen", err)
	}
	assert.Empty(t, rx.Writes())
}

func TestSendSetting_WriteError(t *testing.T) {
	port := serialport.NewTestablePort(9600)
	port.AddReadData([]byte("OK!"))
	opener := serialport.NewMockOpener(port)
	m := New("/dev/ttyS4", serialport.Options{BaudRate: 9600},
		WithConfig(fastConfig()), WithOpener(opener.Open), WithStatus(func(Event) {}))
	defer m.Close()
	require.NoError(t, m.Connect())

	ioErr := errors.New("i/o error")
	port.WriteError = ioErr
	err := m.SendSetting("log version")
	require.Error(t, err)
	assert.ErrorIs(t, err, ioErr)
}

func TestSendSettings_NoShortCircuit(t *testing.T) {
	m, rx, _ := newSimulated(t, 9600, 9600)
	require.NoError(t, m.Connect())

	results := m.SendSettings([]string{"log version", "", "COM COM1 abc", "COM COM1 38400", "log gpgsv ontime 5"})
	require.Len(t, results, 5)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrInvalidCommand)
	assert.ErrorIs(t, results[2].Err, ErrInvalidCommand)
	assert.NoError(t, results[3].Err)
	assert.NoError(t, results[4].Err)
	assert.True(t, results[4].OK())
	assert.Equal(t, "COM COM1 38400", results[3].Command)

	assert.Equal(t, 38400, m.Baud())
	assert.Equal(t, 38400, rx.DeviceBaud())
}

func TestSendSettings_ContinuesAfterAckTimeout(t *testing.T) {
	port := serialport.NewTestablePort(9600)
	port.AddReadData([]byte("OK!"))
	opener := serialport.NewMockOpener(port)
	m := New("/dev/ttyS5", serialport.Options{BaudRate: 9600},
		WithConfig(fastConfig()), WithOpener(opener.Open), WithStatus(func(Event) {}))
	defer m.Close()
	require.NoError(t, m.Connect())

	results := m.SendSettings([]string{"first", "second"})
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrAckTimeout)
	assert.ErrorIs(t, results[1].Err, ErrAckTimeout)
	assert.Contains(t, string(port.GetWrittenData()), "second\r\n")
}

func TestSend_Raw(t *testing.T) {
	m, rx, _ := newSimulated(t, 9600, 9600)
	if err := m.Send([]byte{0xb5, 0x62}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send on closed link = %v, want ErrNotOpen", err)
	}
	require.NoError(t, m.Connect())
	require.NoError(t, m.Send([]byte{0xb5, 0x62, 0x06, 0x00}))
	writes := rx.Writes()
	assert.Equal(t, []byte{0xb5, 0x62, 0x06, 0x00}, writes[len(writes)-1].Data)
}

func TestLink_ShortWrite(t *testing.T) {
	l := &link{port: shortWriter{serialport.NewTestablePort(9600)}}
	if err := l.write([]byte("log version\r\n")); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("write error = %v, want ErrWriteFailed", err)
	}
}

type shortWriter struct {
	*serialport.TestablePort
}

func (s shortWriter) Write(p []byte) (int, error) {
	return len(p) / 2, nil
}
