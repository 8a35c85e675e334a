package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ChuLiYu/shopfloor-planner/internal/metrics"
	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// maxBodyBytes limits a request body.
const maxBodyBytes = 8 << 20

// HTTPHandler returns the JSON endpoints. gatherer backs /metrics; nil means
// the default registry.
func (s *Server) HTTPHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /solve", s.handleSolve)
	mux.HandleFunc("POST /whatif/simulate", s.handleSimulate)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler(gatherer))
	return mux
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req types.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Solve(req))
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req types.SimulateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Simulate(req))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log().Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"status": string(types.StatusError), "error": err.Error()})
}

// ============================================================================
// 服務啟動
// ============================================================================

// Config 監聽位址
type Config struct {
	GRPCAddr string
	HTTPAddr string
}

// Run 啟動 gRPC 與 HTTP 伺服器，ctx 取消後優雅關閉
// 任一位址為空時不啟動對應的伺服器
func (s *Server) Run(ctx context.Context, cfg Config, gatherer prometheus.Gatherer) error {
	if cfg.GRPCAddr == "" && cfg.HTTPAddr == "" {
		return errors.New("no listen address configured")
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}
		gs := NewGRPCServer(s)
		log().Info("gRPC server listening", "addr", lis.Addr().String())

		g.Go(func() error {
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	if cfg.HTTPAddr != "" {
		hs := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           s.HTTPHandler(gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		}
		log().Info("HTTP server listening", "addr", cfg.HTTPAddr)

		g.Go(func() error {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	log().Info("Servers stopped")
	return err
}
