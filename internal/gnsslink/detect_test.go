package gnsslink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gnsslink/internal/serialport"
	"github.com/banshee-data/gnsslink/internal/testutil"
)

func TestDetect_TriesEveryCandidateOnceSkippingStart(t *testing.T) {
	m, rx, _ := newSimulated(t, 9600, 1200)

	require.NoError(t, m.Connect())
	assert.Equal(t, 1200, m.Baud())

	// The first probe is the connect probe at the configured speed.
	want := []int{9600, 115200, 921600, 57600, 38400, 19200, 230400, 460800, 4800, 1200}
	assert.Equal(t, want, rx.WriteBaudsContaining("versionb"))
}

func TestDetect_StopsAtFirstAnsweringSpeed(t *testing.T) {
	m, rx, rec := newSimulated(t, 9600, 9600)
	require.NoError(t, m.Connect())

	rx.SetDeviceBaud(57600)
	baud, err := m.Detect()
	require.NoError(t, err)
	assert.Equal(t, 57600, baud)
	assert.Equal(t, 57600, m.Baud())
	assert.Equal(t, 57600, rx.PortBaud())

	probes := rx.WriteBaudsContaining("versionb")
	assert.Equal(t, []int{115200, 921600, 57600}, probes[1:])
	assert.Equal(t, 3, rec.count(EventBaudTrying))

	require.NoError(t, m.SendSetting("unlog"))
}

func TestDetect_CustomCandidates(t *testing.T) {
	rx := serialport.NewSimulatedReceiver(19200)
	opener := serialport.NewMockOpener(rx)
	cfg := fastConfig()
	cfg.CandidateBauds = []int{4800, 19200, 9600}
	m := New("/dev/ttySIM1", serialport.Options{BaudRate: 9600},
		WithConfig(cfg), WithOpener(opener.Open), WithStatus(func(Event) {}))
	defer m.Close()

	require.NoError(t, m.Connect())
	assert.Equal(t, 19200, m.Baud())
	assert.Equal(t, []int{9600, 4800, 19200}, rx.WriteBaudsContaining("versionb"))
}

func TestDetect_SetBaudFailureMovesOn(t *testing.T) {
	port := serialport.NewTestablePort(9600)
	port.BaudError = errors.New("unsupported speed")
	opener := serialport.NewMockOpener(port)
	cfg := fastConfig()
	cfg.CandidateBauds = []int{115200, 9600, 57600}
	rec := &eventRecorder{}
	m := New("/dev/ttyS2", serialport.Options{BaudRate: 9600},
		WithConfig(cfg), WithOpener(opener.Open), WithStatus(rec.record))
	defer m.Close()

	err := m.Connect()
	if !errors.Is(err, ErrNoBaudrate) {
		t.Fatalf("Connect error = %v, want ErrNoBaudrate", err)
	}
	// 115200 was rejected, 57600 tried, then the start speed restored.
	assert.Equal(t, []int{57600, 9600}, port.BaudChanges)
	assert.Equal(t, 1, rec.count(EventTransportError))
	assert.Equal(t, 9600, m.Baud())
}

func TestDetect_NotOpen(t *testing.T) {
	m, _, _ := newSimulated(t, 9600, 9600)
	if _, err := m.Detect(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Detect error = %v, want ErrNotOpen", err)
	}
}

func TestDetect_DrainsStaleData(t *testing.T) {
	port := serialport.NewTestablePort(9600)
	port.AddReadData([]byte("OK!"))
	cfg := fastConfig()
	cfg.CandidateBauds = []int{115200, 57600}
	m := New("/dev/ttyS3", serialport.Options{BaudRate: 9600},
		WithConfig(cfg), WithOpener(serialport.NewMockOpener(port).Open), WithStatus(func(Event) {}))
	defer m.Close()
	require.NoError(t, m.Connect())

	// An acknowledgment queued before detection must not count for the
	// first candidate; this port never answers a probe.
	port.AddReadData([]byte("$GNGGA,stale OK!\r\n"))
	require.True(t, testutil.WaitFor(time.Second, func() bool { return m.Pending() > 0 }))

	_, err := m.Detect()
	assert.ErrorIs(t, err, ErrNoBaudrate)
	assert.Zero(t, m.Pending())
	assert.Equal(t, 9600, m.Baud())
}
