package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"bn-rebalance-bot/internal/state"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type healthResponse struct {
	Status        string             `json:"status"`
	LastCycleAtMS int64              `json:"last_cycle_at_ms"`
	Assets        []state.Evaluation `json:"assets"`
}

func (a *App) router() *mux.Router {
	r := mux.NewRouter()
	if a.prom != nil {
		r.Handle(a.cfg.Metrics.Path, a.prom.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	evals, err := state.LoadEvaluations(r.Context(), a.store)
	if err != nil {
		a.log.Warn("health: load evaluations failed", zap.Error(err))
	}
	resp := healthResponse{
		Status:        "ok",
		LastCycleAtMS: a.lastCycleMS.Load(),
		Assets:        evals,
	}
	if resp.Assets == nil {
		resp.Assets = []state.Evaluation{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *App) startServer(ctx context.Context) {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.log.Warn("metrics server disabled", zap.String("address", a.server.Addr), zap.Error(err))
		return
	}
	a.log.Info("metrics server listening", zap.String("address", ln.Addr().String()), zap.String("path", a.cfg.Metrics.Path))
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}()
}
