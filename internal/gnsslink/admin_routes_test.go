package gnsslink

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gnsslink/internal/testutil"
)

func TestAttachAdminRoutes_Status(t *testing.T) {
	m, _, _ := newSimulated(t, 9600, 9600)
	require.NoError(t, m.Connect())

	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	w := testutil.ServeDebug(mux, http.MethodGet, "/debug/gnss-status", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got LinkStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, LinkStatus{Path: "/dev/ttySIM0", Baud: 9600, State: "connected", Open: true, Pending: got.Pending}, got)
}

func TestAttachAdminRoutes_SendSetting(t *testing.T) {
	m, rx, _ := newSimulated(t, 9600, 9600)
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	post := func(setting string) *httptest.ResponseRecorder {
		return testutil.ServeDebug(mux, http.MethodPost, "/debug/gnss-send-setting", url.Values{"setting": {setting}})
	}

	t.Run("not connected", func(t *testing.T) {
		w := post("log version")
		testutil.AssertStatusCode(t, w.Code, http.StatusBadGateway)
		assert.Contains(t, w.Body.String(), "connection is not open")
	})

	require.NoError(t, m.Connect())

	t.Run("plain", func(t *testing.T) {
		w := post("log version")
		testutil.AssertStatusCode(t, w.Code, http.StatusOK)
		assert.Equal(t, "log version: OK!\n", w.Body.String())
	})

	t.Run("speed change", func(t *testing.T) {
		w := post("COM COM1 57600")
		testutil.AssertStatusCode(t, w.Code, http.StatusOK)
		assert.Equal(t, 57600, m.Baud())
		assert.Equal(t, 57600, rx.DeviceBaud())
	})

	t.Run("missing", func(t *testing.T) {
		w := post("   ")
		testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
		assert.Contains(t, w.Body.String(), "Missing setting")
	})

	t.Run("GET not allowed", func(t *testing.T) {
		w := testutil.ServeDebug(mux, http.MethodGet, "/debug/gnss-send-setting", nil)
		testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
	})
}

func TestAttachAdminRoutes_TailMethod(t *testing.T) {
	m, _, _ := newSimulated(t, 9600, 9600)
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	w := testutil.ServeDebug(mux, http.MethodPost, "/debug/gnss-tail", nil)
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestAttachAdminRoutes_TailStreams(t *testing.T) {
	m, _, _ := newSimulated(t, 9600, 9600)
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	// httptest.Server connects over loopback, which tsweb allows.
	resp, err := http.Get(srv.URL + "/debug/gnss-tail")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	m.deliver([]byte("$GNGGA,1\r\n"))

	buf := make([]byte, 0, 256)
	tmp := make([]byte, 64)
	for !strings.Contains(string(buf), `data: "$GNGGA,1\r\n"`) {
		n, err := resp.Body.Read(tmp)
		require.NoError(t, err)
		buf = append(buf, tmp[:n]...)
	}
}
