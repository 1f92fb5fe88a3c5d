package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"LiveBoard/internal/config"
	"LiveBoard/internal/export"
	"LiveBoard/internal/lan"
	"LiveBoard/internal/room"
)

func main() {
	var (
		addr      = pflag.String("addr", "", "listen address, overrides the config file")
		cfgPath   = pflag.String("config", "", "path to a YAML config file")
		debug     = pflag.Bool("debug", false, "verbose development logging")
		advertise = pflag.Bool("advertise", true, "announce the board over mDNS")
		discover  = pflag.Bool("discover", false, "list boards on the local network and exit")
	)
	pflag.Parse()

	if *discover {
		runDiscover()
		return
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if pflag.CommandLine.Changed("debug") {
		cfg.Debug = *debug
	}
	if pflag.CommandLine.Changed("advertise") {
		cfg.Advertise = *advertise
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runDiscover() {
	boards, err := lan.Discover()
	if err != nil {
		fmt.Fprintln(os.Stderr, "discover:", err)
		os.Exit(1)
	}
	if len(boards) == 0 {
		fmt.Println("no boards found")
		return
	}
	for _, b := range boards {
		fmt.Printf("%-30s %s\n", b.Host, b.Addr)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	reg := room.NewRegistry(cfg.Room.Options(), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", reg.ServeWS)
	mux.HandleFunc("GET /rooms", handleRooms(reg))
	mux.HandleFunc("GET /rooms/{id}/export.pdf", handleExport(reg, logger))

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	announceShareLink(cfg, logger)

	if cfg.Advertise {
		if port, ok := listenPort(cfg.Addr); ok {
			adv, err := lan.Advertise(port, logger)
			if err != nil {
				// A board without mDNS still works over the share link.
				logger.Warn("mDNS advertise failed", zap.Error(err))
			} else {
				defer adv.Shutdown()
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// announceShareLink prints the address teammates should paste into
// their client.
func announceShareLink(cfg config.Config, logger *zap.Logger) {
	port, ok := listenPort(cfg.Addr)
	if !ok {
		return
	}
	logger.Info("share this board", zap.String("url",
		fmt.Sprintf("ws://%s:%d/ws?room=%s", lan.OutgoingIP(), port, room.DefaultRoom)))
}

func listenPort(addr string) (int, bool) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, false
	}
	return port, true
}

func handleRooms(reg *room.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reg.Stats())
	}
}

// handleExport renders the room's visible strokes as a PDF download.
func handleExport(reg *room.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := req.PathValue("id")
		r, ok := reg.Get(id)
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".pdf"))
		if err := export.WritePDF(w, r.VisibleStrokes()); err != nil {
			logger.Error("pdf export failed", zap.String("room", id), zap.Error(err))
		}
	}
}
