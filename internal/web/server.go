// Package web serves the faucet's HTTP API: grant requests, health and status checks,
// and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-faucet/internal/faucet"
	"github.com/chenzhangda16/web3-faucet/internal/intake"
	"github.com/chenzhangda16/web3-faucet/internal/metrics"
	"github.com/chenzhangda16/web3-faucet/pkg/obs"
)

// StatusSource reports the faucet's current state. *faucet.Faucet implements it.
type StatusSource interface {
	Status() faucet.Status
}

type Server struct {
	requests chan<- common.Address
	status   StatusSource
	router   *mux.Router
	lg       zerolog.Logger
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func NewServer(requests chan<- common.Address, status StatusSource) *Server {
	s := &Server{
		requests: requests,
		status:   status,
		router:   mux.NewRouter(),
		lg:       obs.Logger("web"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/faucet/request/{address}", s.handleRequest).Methods(http.MethodPost)
	s.router.HandleFunc("/faucet/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/healthcheck", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down within 5s.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.lg.Info().Str("addr", addr).Msg("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["address"]
	addr, err := intake.ParseAddress(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "bad_address",
			Message: "unable to parse Ethereum address: " + raw,
		})
		return
	}

	s.lg.Info().Str("address", addr.Hex()).Msg("received faucet request")
	select {
	case s.requests <- addr:
	case <-r.Context().Done():
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "internal",
			Message: r.Context().Err().Error(),
		})
		return
	}
	metrics.RequestsReceived.WithLabelValues("http").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued", "address": addr.Hex()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "available"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Status())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
