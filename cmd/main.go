package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	v1handlers "github.com/deepgram/connected/internal/api/v1/handlers"
	v1mware "github.com/deepgram/connected/internal/api/v1/middleware"
	"github.com/deepgram/connected/internal/config"
	"github.com/deepgram/connected/internal/services"
	"github.com/deepgram/connected/pkg/logger"
)

func main() {
	config.LoadEnvFile()

	svcs, err := services.InitializeServices()
	if err != nil {
		logger.Fatal(logger.APP, "Failed to initialize services: %v", err)
		os.Exit(1)
	}

	addr := config.GetListenAddr()
	server := &http.Server{
		Addr:              addr,
		Handler:           setupRouter(svcs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(logger.APP, "Server starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(logger.APP, "ListenAndServe error: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info(logger.APP, "Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svcs.Shutdown()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error(logger.APP, "Graceful shutdown failed: %v", err)
	}
}

func setupRouter(svcs *services.Services) *mux.Router {
	r := mux.NewRouter()
	r.Use(v1mware.RequestLogger)
	r.HandleFunc("/health", v1handlers.HandleHealth).Methods("GET")
	v1handlers.RegisterV1Routes(r, svcs)
	return r
}
