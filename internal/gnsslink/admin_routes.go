package gnsslink

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

// LinkStatus is the snapshot served by the gnss-status route.
type LinkStatus struct {
	Path    string `json:"path"`
	Baud    int    `json:"baud"`
	State   string `json:"state"`
	Open    bool   `json:"open"`
	Pending int    `json:"pending"`
}

// Status returns a snapshot of the link.
func (m *Manager) Status() LinkStatus {
	return LinkStatus{
		Path:    m.path,
		Baud:    m.Baud(),
		State:   m.State().String(),
		Open:    m.IsOpen(),
		Pending: m.Pending(),
	}
}

// AttachAdminRoutes attaches link debugging endpoints to mux under /debug/.
// tsweb restricts them to localhost and the tailnet.
func (m *Manager) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("GNSS link", func() any {
		return fmt.Sprintf("%s %d baud %s", m.path, m.Baud(), m.State())
	})

	debug.HandleFunc("gnss-status", "GNSS link state as JSON", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.Status()); err != nil {
			http.Error(w, "Failed to encode status", http.StatusInternalServerError)
		}
	})

	// Sends one setting, running the speed change protocol for COM COM lines.
	debug.HandleSilentFunc("gnss-send-setting", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		setting := strings.TrimSpace(r.FormValue("setting"))
		if setting == "" {
			http.Error(w, "Missing setting", http.StatusBadRequest)
			return
		}
		if err := m.SendSetting(setting); err != nil {
			http.Error(w, fmt.Sprintf("%s: ERR: %v", setting, err), http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, "%s: OK!\n", setting)
	})

	// Server-Sent Events with every received chunk, JSON string encoded.
	debug.HandleSilentFunc("gnss-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case chunk, ok := <-c:
				if !ok {
					return
				}
				payload, _ := json.Marshal(string(chunk))
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
