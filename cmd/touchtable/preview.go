package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hybridgroup/mjpeg"
)

// servePreview serves stream as an MJPEG feed on addr until ctx is done
func servePreview(ctx context.Context, addr string, stream *mjpeg.Stream) {

	mux := http.NewServeMux()
	mux.Handle("/", stream)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		server.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("serving preview")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("preview server failed")
	}
}
