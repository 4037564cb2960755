package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leadnexus/subiq/internal/config"
	"github.com/leadnexus/subiq/internal/model"
	"github.com/leadnexus/subiq/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	Long: `Start the HTTP API: run listings and classification results for
review dashboards, plus a rate-limited endpoint for confirming actions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, cfg.Server),
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

func newRouter(st store.Store, serverCfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", handleListRuns(st))
		r.Get("/runs/{id}", handleGetRun(st))
		r.Get("/runs/{id}/classifications", handleListClassifications(st))
		r.Get("/outcomes/{actionID}", handleGetOutcome(st))

		perMin := serverCfg.ConfirmRatePerMin
		if perMin <= 0 {
			perMin = 30
		}
		limiter := rate.NewLimiter(rate.Limit(perMin/60.0), int(perMin))
		r.With(rateLimit(limiter)).Post("/actions", handleCreateAction(st))
	})

	return r
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleListRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := st.ListRuns(r.Context(), store.RunFilter{
			Status: model.RunStatus(r.URL.Query().Get("status")),
		})
		if err != nil {
			serverError(w, "list runs", err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGetRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := st.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serverError(w, "get run", err)
			return
		}
		if run == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleListClassifications(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := st.ListClassifications(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serverError(w, "list classifications", err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func handleGetOutcome(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := st.GetOutcome(r.Context(), chi.URLParam(r, "actionID"))
		if err != nil {
			serverError(w, "get outcome", err)
			return
		}
		if out == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "outcome not found"})
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleCreateAction(st store.Store) http.HandlerFunc {
	type request struct {
		SubID       string `json:"subid"`
		ActionType  string `json:"action_type"`
		ActionDate  string `json:"action_date"`
		Vertical    string `json:"vertical"`
		TrafficType string `json:"traffic_type"`
		ConfirmedBy string `json:"confirmed_by"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.SubID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subid is required"})
			return
		}

		actionType, err := model.ParseActionType(req.ActionType)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		vertical, err := model.ParseVertical(req.Vertical)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		trafficType, err := model.ParseTrafficType(req.TrafficType)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		actionDate := time.Now().UTC().Truncate(24 * time.Hour)
		if req.ActionDate != "" {
			actionDate, err = time.Parse("2006-01-02", req.ActionDate)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "action_date must be YYYY-MM-DD"})
				return
			}
		}

		action := model.ActionRecord{
			ActionID:    uuid.NewString(),
			SubID:       req.SubID,
			ActionType:  actionType,
			ActionDate:  actionDate,
			Vertical:    vertical,
			TrafficType: trafficType,
			ConfirmedBy: req.ConfirmedBy,
		}
		if err := st.CreateAction(r.Context(), action); err != nil {
			serverError(w, "create action", err)
			return
		}

		zap.L().Info("action confirmed via api",
			zap.String("action_id", action.ActionID),
			zap.String("subid", action.SubID),
			zap.String("action_type", string(action.ActionType)))
		writeJSON(w, http.StatusCreated, action)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("api: "+op, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
