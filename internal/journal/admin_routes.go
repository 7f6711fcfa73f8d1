package journal

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/gnsslink/internal/monitoring"
)

// AttachAdminRoutes mounts tailsql over the journal and the event routes on
// mux under /debug/.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("[journal] failed to create tailsql server: %v", err)
	} else {
		tsql.SetDB("sqlite://"+filepath.Base(j.path), j.db, &tailsql.DBOptions{
			Label: "GNSS link journal",
		})
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	}

	debug.KVFunc("Journal session", func() any { return j.session })

	debug.HandleFunc("gnss-events", "recent link events as JSON (?limit=&kind=)", func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		entries, err := j.Recent(limit, r.URL.Query().Get("kind"))
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to read events: %v", err), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []Entry{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	})

	debug.Handle("gnss-journal-backup", "Create and download a backup of the journal now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("gnsslink-backup-%d.db", time.Now().UnixNano()))
		if _, err := j.db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		// remove the backup once sent
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("[journal] failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			monitoring.Logf("[journal] failed to write backup: %v", err)
		}
	}))
}
