// Command gnsslink connects to a GNSS receiver over serial, finds its baud
// rate, applies settings and serves link diagnostics over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/gnsslink/internal/config"
	"github.com/banshee-data/gnsslink/internal/gnsslink"
	"github.com/banshee-data/gnsslink/internal/journal"
	"github.com/banshee-data/gnsslink/internal/monitoring"
	"github.com/banshee-data/gnsslink/internal/serialport"
	"github.com/banshee-data/gnsslink/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a .json or .yaml link config file")
	port        = flag.String("port", config.DefaultPort, "Serial port of the receiver (ignored in dev mode)")
	baud        = flag.Int("baud", serialport.DefaultBaudRate, "Baud rate tried first; detected when wrong")
	listen      = flag.String("listen", config.DefaultListen, "Admin HTTP listen address, empty disables")
	journalPath = flag.String("journal", "", "SQLite event journal path, empty disables")
	settings    = flag.String("settings", "", "Semicolon separated receiver settings sent after connecting")
	dump        = flag.Bool("dump", false, "Copy raw receiver output to stdout")
	devMode     = flag.Bool("dev", false, "Run against a simulated receiver")
	devBaud     = flag.Int("dev-baud", 115200, "Speed of the simulated receiver in dev mode")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// logLines is the number of recent log lines served on /debug/gnss-log.
const logLines = 500

// splitSettings splits a semicolon separated list, dropping empty entries.
func splitSettings(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyFlagOverrides copies the explicitly set flags over the file values.
// Settings from the flag are sent after those from the file.
func applyFlagOverrides(cfg *config.LinkConfig, set map[string]bool) {
	if set["port"] {
		cfg.Port = port
	}
	if set["baud"] {
		cfg.BaudRate = baud
	}
	if set["listen"] {
		cfg.Listen = listen
	}
	if set["journal"] {
		cfg.Journal = journalPath
	}
	if set["settings"] {
		cfg.Settings = append(cfg.Settings, splitSettings(*settings)...)
	}
}

func loadConfig() (*config.LinkConfig, error) {
	cfg := config.EmptyLinkConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadLinkConfig(*configPath); err != nil {
			return nil, err
		}
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlagOverrides(cfg, set)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// simulatedOpener returns an opener backed by a simulated receiver talking
// at deviceBaud that emits a position fix every second until ctx ends.
func simulatedOpener(ctx context.Context, deviceBaud int) serialport.Opener {
	rx := serialport.NewSimulatedReceiver(deviceBaud)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case t := <-ticker.C:
				rx.Emit([]byte(fakeGGA(t)))
			case <-ctx.Done():
				return
			}
		}
	}()
	return serialport.NewMockOpener(rx).Open
}

// fakeGGA builds a checksummed GGA sentence stamped with t.
func fakeGGA(t time.Time) string {
	body := fmt.Sprintf("GPGGA,%s,3723.2475,N,12158.3416,W,1,07,1.0,9.0,M,,M,,", t.UTC().Format("150405.00"))
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X\r\n", body, sum)
}

// forwardRaw copies received chunks to w until ctx ends or m is closed. It
// reads through the raw tap, so acknowledgments stay on the chunk queue for
// the commands waiting on them.
func forwardRaw(ctx context.Context, m *gnsslink.Manager, w io.Writer) {
	id, chunks := m.Subscribe()
	defer m.Unsubscribe(id)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				log.Printf("failed to forward receiver output: %v", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// attachLogRoute serves the recent log lines held by ring.
func attachLogRoute(mux *http.ServeMux, ring *monitoring.Ring) {
	debug := tsweb.Debugger(mux)
	debug.KV("Version", version.String())
	debug.HandleFunc("gnss-log", "recent gnsslink log lines", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ring.Lines())
	})
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ring := monitoring.NewRing(logLines)
	monitoring.SetLogger(ring.Tee())
	log.Printf("starting %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opener := serialport.Opener(serialport.Open)
	if *devMode {
		log.Printf("dev mode: simulated receiver at %d baud", *devBaud)
		opener = simulatedOpener(ctx, *devBaud)
	}

	status := gnsslink.LogStatus(monitoring.Tagged("gnsslink"))
	var j *journal.Journal
	if path := cfg.GetJournal(); path != "" {
		j, err = journal.Open(path)
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		defer j.Close()
		status = gnsslink.MultiStatus(status, j.Record)
		log.Printf("journal %s, session %s", path, j.Session())
	}

	m := gnsslink.New(cfg.GetPort(), cfg.PortOptions(),
		gnsslink.WithConfig(cfg.LinkTimings()),
		gnsslink.WithOpener(opener),
		gnsslink.WithStatus(status),
	)
	defer m.Close()

	if err := m.Connect(); err != nil {
		log.Fatalf("failed to connect to %s: %v", cfg.GetPort(), err)
	}

	failed := 0
	for _, r := range m.SendSettings(cfg.GetSettings()) {
		if !r.OK() {
			failed++
			log.Printf("setting %q failed: %v", r.Command, r.Err)
		}
	}
	if failed > 0 {
		log.Printf("%d of %d settings failed", failed, len(cfg.GetSettings()))
	}

	// Create a wait group for the HTTP server and raw output routines
	var wg sync.WaitGroup

	if *dump {
		wg.Add(1)
		go func() {
			defer wg.Done()
			forwardRaw(ctx, m, os.Stdout)
		}()
	}

	if addr := cfg.GetListen(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mux := http.NewServeMux()
			// admin debugging routes, accessible only from localhost or over Tailscale
			m.AttachAdminRoutes(mux)
			if j != nil {
				j.AttachAdminRoutes(mux)
			}
			attachLogRoute(mux, ring)

			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			log.Printf("admin routes on http://%s/debug/", addr)

			<-ctx.Done()
			log.Println("shutting down HTTP server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	log.Printf("disconnecting from %s", m.Path())
}
