package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reconai/stategate/internal/panel"
	"github.com/reconai/stategate/internal/store"
	"github.com/reconai/stategate/internal/uistate"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local state API for dashboard panels",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initGate(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer env.Close()

		// Warm every panel so the first GET is not a loading state.
		go env.Registry.RefreshAll(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Registry, env.Store, cfg.Server.CORSOrigins),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(reg *panel.Registry, st store.Store, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/v1/state/{domain}", func(w http.ResponseWriter, r *http.Request) {
		p, ok := reg.Get(chi.URLParam(r, "domain"))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown domain")
			return
		}
		writeJSON(w, http.StatusOK, p.State())
	})

	r.Post("/v1/state/{domain}/refresh", func(w http.ResponseWriter, r *http.Request) {
		p, ok := reg.Get(chi.URLParam(r, "domain"))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown domain")
			return
		}
		writeJSON(w, http.StatusOK, p.Refresh(r.Context()))
	})

	r.Post("/v1/state/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reg.RefreshAll(r.Context()))
	})

	r.Post("/v1/actions/{action}/confirm", func(w http.ResponseWriter, r *http.Request) {
		handleConfirm(w, r, reg)
	})

	if st != nil {
		r.Get("/v1/audit/fetches", func(w http.ResponseWriter, r *http.Request) {
			handleAuditList(w, r, st)
		})
		r.Get("/v1/audit/summary", func(w http.ResponseWriter, r *http.Request) {
			counts, err := st.OutcomeCounts(r.Context(), r.URL.Query().Get("domain"))
			if err != nil {
				zap.L().Error("audit summary failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "audit summary failed")
				return
			}
			writeJSON(w, http.StatusOK, counts)
		})
	}

	return r
}

// handleConfirm is the confirmation-phrase gate for operator actions.
// It authorizes only; firing the action itself stays with the backend.
func handleConfirm(w http.ResponseWriter, r *http.Request, reg *panel.Registry) {
	action, err := uistate.ActionByName(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	var req struct {
		Phrase string `json:"phrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Destructive actions are gated on the policy acknowledgement from
	// the core panel's last successfully validated payload.
	acknowledged := false
	if p, ok := reg.Get("core"); ok {
		acknowledged = p.State().PolicyAcknowledged
	}

	if err := action.Authorize(req.Phrase, acknowledged); err != nil {
		zap.L().Warn("action confirmation refused",
			zap.String("action", action.Name),
			zap.Error(err),
		)
		writeError(w, http.StatusForbidden, eris.Cause(err).Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"action":     action.Name,
		"authorized": true,
	})
}

func handleAuditList(w http.ResponseWriter, r *http.Request, st store.Store) {
	q := r.URL.Query()
	filter := store.Filter{
		Domain:  q.Get("domain"),
		Outcome: store.Outcome(q.Get("outcome")),
	}
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Limit = n
		}
	}
	if s := q.Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Offset = n
		}
	}

	records, err := st.ListFetches(r.Context(), filter)
	if err != nil {
		zap.L().Error("audit list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "audit list failed")
		return
	}
	if records == nil {
		records = []store.FetchRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
