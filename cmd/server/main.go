package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"InventoryLens/go-backend/internal/config"
	"InventoryLens/go-backend/internal/handlers"
	"InventoryLens/go-backend/internal/logger"
	"InventoryLens/go-backend/internal/services"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	grpcPort := flag.String("grpc-port", "", "gRPC port (overrides GRPC_PORT)")
	detectionURL := flag.String("detection-url", "", "Detection API URL (overrides DETECTION_URL)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}
	if *grpcPort != "" {
		cfg.GRPCPort = *grpcPort
	}
	if *detectionURL != "" {
		cfg.DetectionURL = *detectionURL
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	log.WithFields(logrus.Fields{
		"http_port":     cfg.HTTPPort,
		"grpc_port":     cfg.GRPCPort,
		"detection_url": cfg.DetectionURL,
		"environment":   cfg.Environment,
		"origins":       cfg.AllowedOrigins,
	}).Info("Starting InventoryLens backend")

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	metrics := services.NewMetrics()
	pipeline := services.NewPipeline(services.NewInferenceClient(cfg, log), metrics, log)
	hub := handlers.NewHub(pipeline, metrics, cfg.AllowedOrigins, cfg.MaxUploadBytes(), log)
	api := handlers.NewAPI(cfg, pipeline, metrics, hub, log)

	msgLimit := int(cfg.MaxUploadBytes()) + 1<<20
	grpcHandler := handlers.NewGRPCHandler(pipeline, log)
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(msgLimit),
		grpc.MaxSendMsgSize(msgLimit),
		grpc.UnaryInterceptor(grpcHandler.UnaryLogger),
	)
	grpcHandler.Register(grpcServer)

	httpServer := &http.Server{
		Addr:         ":" + trimPort(cfg.HTTPPort),
		Handler:      api.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go startGRPCServer(log, grpcServer, cfg.GRPCPort)
	go startHTTPServer(log, httpServer)

	<-done
	log.Info("Shutting down...")

	grpcHandler.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		log.Info("gRPC server stopped")
	case <-shutdownCtx.Done():
		log.Warn("Forced gRPC shutdown")
		grpcServer.Stop()
	}

	httpShutdownCtx, cancelHTTP := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHTTP()

	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	} else {
		log.Info("HTTP server gracefully stopped")
	}

	// Hijacked connections are not tracked by http.Server.Shutdown.
	hub.CloseAll()
	log.Info("Goodbye!")
}

func trimPort(port string) string {
	return strings.TrimPrefix(port, ":")
}

func startGRPCServer(log logrus.FieldLogger, server *grpc.Server, port string) {
	lis, err := net.Listen("tcp", ":"+trimPort(port))
	if err != nil {
		log.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	log.WithField("port", trimPort(port)).Info("gRPC server listening")
	if err := server.Serve(lis); err != nil {
		log.WithError(err).Fatal("Failed to serve gRPC")
	}
}

func startHTTPServer(log logrus.FieldLogger, server *http.Server) {
	log.WithField("addr", server.Addr).Info("HTTP server listening")
	log.Infof("WebSocket: ws://localhost%s/ws", server.Addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("Failed to serve HTTP")
	}
}
