// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/olahol/melody"

	"github.com/relabs-tech/nrf_orientation/internal/config"
	"github.com/relabs-tech/nrf_orientation/internal/ingest"
	"github.com/relabs-tech/nrf_orientation/internal/orientation"
	"github.com/relabs-tech/nrf_orientation/internal/transport"
)

// WebServer serves the latest snapshots over HTTP and pushes new ones to
// websocket clients.
type WebServer struct {
	snaps     *Snapshots
	metrics   *ingest.Metrics
	staticDir string
	melody    *melody.Melody
	log       *slog.Logger
	started   time.Time
}

// NewWebServer serves snaps, with static files from staticDir at /.
func NewWebServer(snaps *Snapshots, staticDir string) *WebServer {
	w := &WebServer{
		snaps:     snaps,
		staticDir: staticDir,
		log:       slog.With("daemon", "web"),
		started:   time.Now(),
	}
	w.initMelody()
	return w
}

// WithMetrics adds ingest counters to /api/status.
func (w *WebServer) WithMetrics(m *ingest.Metrics) *WebServer {
	w.metrics = m
	return w
}

func (w *WebServer) initMelody() {
	w.melody = melody.New()
	w.melody.Upgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	// New clients get the current view right away.
	w.melody.HandleConnect(func(s *melody.Session) {
		w.log.Debug("Websocket connected", "remote", s.Request.RemoteAddr)
		for _, snap := range w.snaps.All() {
			b, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			_ = s.Write(b)
		}
	})
	w.melody.HandleDisconnect(func(s *melody.Session) {
		w.log.Debug("Websocket disconnected", "remote", s.Request.RemoteAddr)
	})
	w.melody.HandleError(func(s *melody.Session, err error) {
		w.log.Debug("Websocket error", "remote", s.Request.RemoteAddr, "error", err)
	})
}

// Publish records snap and broadcasts it to websocket clients.
func (w *WebServer) Publish(snap orientation.Snapshot) {
	w.snaps.Put(snap)
	b, err := json.Marshal(snap)
	if err != nil {
		w.log.Error("Failed to marshal snapshot", "error", err)
		return
	}
	if err := w.melody.Broadcast(b); err != nil {
		w.log.Debug("Broadcast failed", "error", err)
	}
}

// Router builds the HTTP routes.
func (w *WebServer) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(false)

	router.Path("/ping").HandlerFunc(pingPong).Methods(http.MethodGet)
	router.Path("/ws").HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if err := w.melody.HandleRequest(rw, r); err != nil {
			w.log.Debug("Websocket upgrade failed", "error", err)
		}
	})

	api := router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentType)
	api.Path("/orientation").HandlerFunc(w.handleLatest).Methods(http.MethodGet)
	api.Path("/orientation/{device}").HandlerFunc(w.handleDevice).Methods(http.MethodGet)
	api.Path("/devices").HandlerFunc(w.handleDevices).Methods(http.MethodGet)
	api.Path("/status").HandlerFunc(w.handleStatus).Methods(http.MethodGet)

	router.PathPrefix("/").Handler(http.FileServer(http.Dir(w.staticDir)))
	return router
}

// Handler is Router with combined access logging.
func (w *WebServer) Handler() http.Handler {
	return handlers.CombinedLoggingHandler(os.Stdout, w.Router())
}

// ListenAndServe serves on addr until ctx is cancelled.
func (w *WebServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = w.melody.Close()
		_ = srv.Shutdown(shutdownCtx)
	}()

	w.log.Info("Web server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: %w", err)
	}
	return nil
}

func pingPong(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (w *WebServer) writeJSON(rw http.ResponseWriter, v any) {
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		w.log.Error("json encode error", "error", err)
	}
}

func (w *WebServer) handleLatest(rw http.ResponseWriter, _ *http.Request) {
	snap, ok := w.snaps.Latest()
	if !ok {
		http.Error(rw, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.writeJSON(rw, snap)
}

func (w *WebServer) handleDevice(rw http.ResponseWriter, r *http.Request) {
	device := mux.Vars(r)["device"]
	snap, ok := w.snaps.Get(device)
	if !ok {
		http.Error(rw, "unknown device", http.StatusNotFound)
		return
	}
	w.writeJSON(rw, snap)
}

type deviceSummary struct {
	Device     string    `json:"device"`
	Seq        uint64    `json:"seq"`
	Time       time.Time `json:"time"`
	LastSeen   string    `json:"last_seen"`
	UpsideDown bool      `json:"upside_down"`
}

func (w *WebServer) handleDevices(rw http.ResponseWriter, _ *http.Request) {
	all := w.snaps.All()
	out := make([]deviceSummary, 0, len(all))
	for _, snap := range all {
		out = append(out, deviceSummary{
			Device:     snap.Device,
			Seq:        snap.Seq,
			Time:       snap.Time,
			LastSeen:   humanize.Time(snap.Time),
			UpsideDown: snap.UpsideDown,
		})
	}
	w.writeJSON(rw, out)
}

type webStatus struct {
	StartedAt time.Time               `json:"started_at"`
	Uptime    string                  `json:"uptime"`
	Devices   int                     `json:"devices"`
	Clients   int                     `json:"clients"`
	Ingest    *ingest.MetricsSnapshot `json:"ingest,omitempty"`
}

func (w *WebServer) handleStatus(rw http.ResponseWriter, _ *http.Request) {
	st := webStatus{
		StartedAt: w.started,
		Uptime:    time.Since(w.started).Round(time.Second).String(),
		Devices:   len(w.snaps.All()),
		Clients:   w.melody.Len(),
	}
	if w.metrics != nil {
		m := w.metrics.Snapshot()
		st.Ingest = &m
	}
	w.writeJSON(rw, st)
}

// RunWeb serves the web view from fused snapshots received over MQTT.
func RunWeb(ctx context.Context, cfg *config.Config) error {
	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	web := NewWebServer(NewSnapshots(), cfg.WebStaticDir)

	token := client.Subscribe(cfg.TopicPoseFused, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var snap orientation.Snapshot
		if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
			web.log.Warn("MQTT payload unmarshal error", "error", err)
			return
		}
		web.Publish(snap)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	web.log.Info("Subscribed", "topic", cfg.TopicPoseFused)

	return web.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.WebServerPort))
}
