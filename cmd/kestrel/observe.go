package main

import (
	"context"
	"net/http"

	"github.com/kestrelops/kestrel/internal/logging"
)

// httpServer is the minimal background HTTP listener the metrics observer
// needs; it mirrors the Start/Stop shape internal/grpcapi.Server already
// uses for its own listener lifecycle.
type httpServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server
}

func (h *httpServer) start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.handler)
	h.srv = &http.Server{Addr: h.addr, Handler: mux}

	logging.Op().Info("metrics server started", "addr", h.addr)
	go func() {
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("metrics server error", "error", err)
		}
	}()
}

func (h *httpServer) stop() {
	if h.srv != nil {
		_ = h.srv.Shutdown(context.Background())
	}
}
