package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grupoagenda/leadscan-cli/internal/export"
	"github.com/grupoagenda/leadscan-cli/internal/model"
	"github.com/grupoagenda/leadscan-cli/internal/store"
	"github.com/grupoagenda/leadscan-cli/internal/stream"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with streaming scan progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)

		origins := cfg.Server.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/api/scan", handleScan(e))
		r.Post("/api/match/run", handleMatchRun(e))
		r.Get("/api/leads/stats", handleStats(e))
		r.Get("/api/export/leads.csv", handleExportCSV(e))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// handleScan runs a scan and streams progress frames. A failure before
// any streaming began (bad body, unknown site) is a plain JSON error;
// once the stream is open, failures arrive as error events.
func handleScan(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Site string `json:"site"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
		}

		if req.Site != "" {
			if _, err := e.Registry.Get(req.Site); err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		sink := stream.NewChannelSink(cfg.Scan.ProgressBuffer)

		// The scan outlives a dropped client; only the frames stop.
		scanCtx := context.WithoutCancel(r.Context())
		go func() {
			if req.Site == "" {
				_, _ = e.Runner.ScanAll(scanCtx, sink)
			} else {
				_, _ = e.Runner.Scan(scanCtx, req.Site, sink)
			}
		}()

		enc := stream.NewEncoder(w)
		for event := range sink.Events() {
			if err := enc.WriteEvent(event.Type, event.Data); err != nil {
				zap.L().Debug("scan stream client gone", zap.Error(err))
				// Keep draining so the sink's terminal send completes.
				for range sink.Events() {
				}
				return
			}
		}
	}
}

func handleMatchRun(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := e.Matcher.RunBulk(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleStats(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := e.Store.Stats(r.Context(), time.Now().In(e.Location))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleExportCSV(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		leads, err := e.Store.ListLeads(r.Context(), store.LeadFilter{
			Site:   r.URL.Query().Get("site"),
			Status: model.LeadStatus(r.URL.Query().Get("status")),
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		rows := make([]*model.Lead, len(leads))
		for i := range leads {
			rows[i] = &leads[i]
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="leads.csv"`)
		if err := export.WriteCSV(w, rows, time.Now().In(e.Location)); err != nil {
			zap.L().Error("csv export failed", zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
