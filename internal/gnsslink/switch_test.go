package gnsslink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gnsslink/internal/serialport"
)

func TestSwitch_Success(t *testing.T) {
	m, rx, rec := newSimulated(t, 9600, 9600)
	require.NoError(t, m.Connect())

	require.NoError(t, m.SendSetting("COM COM1 115200"))
	assert.Equal(t, 115200, m.Baud())
	assert.Equal(t, 115200, rx.DeviceBaud())
	assert.Equal(t, 115200, rx.PortBaud())
	assert.Equal(t, []int{9600}, rx.WriteBaudsContaining("COM COM1"))
	assert.Equal(t, 1, rec.count(EventSwitchCompleted))

	// Plain commands work at the new speed.
	require.NoError(t, m.SendSetting("log gpgga ontime 1"))
}

func TestSwitch_RollbackWhenReceiverStays(t *testing.T) {
	m, rx, rec := newSimulated(t, 9600, 9600)
	require.NoError(t, m.Connect())
	rx.SetFailSwitch(true)

	err := m.SendSetting("COM COM1 460800")
	if !errors.Is(err, ErrSwitchRollback) {
		t.Fatalf("SendSetting error = %v, want ErrSwitchRollback", err)
	}
	assert.Equal(t, 9600, m.Baud())
	assert.Equal(t, 9600, rx.PortBaud())
	assert.True(t, m.IsOpen())
	assert.Equal(t, 1, rec.count(EventSwitchRolledBack))

	// Probe at the new speed happened, then the link went back.
	probes := rx.WriteBaudsContaining("versionb")
	assert.Equal(t, 460800, probes[len(probes)-1])

	// Link is still usable at the prior speed.
	require.NoError(t, m.SendSetting("log version"))
}

func TestSwitch_AbortsWhenReceiverSilent(t *testing.T) {
	m, rx, _ := newSimulated(t, 9600, 9600)
	require.NoError(t, m.Connect())
	rx.SetMute(true)

	err := m.SendSetting("COM COM1 115200")
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("SendSetting error = %v, want ErrAckTimeout", err)
	}
	assert.Equal(t, 9600, m.Baud())
	assert.Empty(t, rx.WriteBaudsContaining("COM COM1"), "switch command must not be sent")
}

func TestSwitch_LocalBaudFailure(t *testing.T) {
	port := serialport.NewTestablePort(9600)
	ack := []byte("$command,log versionb,response: OK!*5A\r\n")
	port.AddReadData(ack)
	opener := serialport.NewMockOpener(port)
	m := New("/dev/ttyS3", serialport.Options{BaudRate: 9600},
		WithConfig(fastConfig()), WithOpener(opener.Open), WithStatus(func(Event) {}))
	defer m.Close()
	require.NoError(t, m.Connect())

	port.AddReadData(ack)
	port.BaudError = errors.New("ioctl failed")

	err := m.SendSetting("COM COM2 230400")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSwitchRollback))
	assert.Equal(t, 9600, m.Baud())
	assert.Empty(t, port.BaudChanges)
	assert.Contains(t, string(port.GetWrittenData()), "COM COM2 230400\r\n")
}
