package main

import (
	"context"
	"flag"
	stdlog "log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"

	"agent-orchestration-service/internal/bootstrap"
	"agent-orchestration-service/internal/config"
	"agent-orchestration-service/internal/health"
	"agent-orchestration-service/internal/logging"
	"agent-orchestration-service/internal/orchestrator/api"
	orchKafka "agent-orchestration-service/internal/orchestrator/kafka"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	loader := config.NewLoader(*configFile)
	cfg, err := loader.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		stdlog.Fatalf("Failed to initialize logging: %v", err)
	}
	log.WithField("config", loader.ConfigFileUsed()).Info("Agent Orchestrator starting...")

	appCtx, appCancel := context.WithCancel(context.Background())

	app, err := bootstrap.New(appCtx, cfg, log, bootstrap.Options{SeedCatalog: true, Owner: cfg.Server.Instance})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize orchestrator")
	}
	if err := app.Orchestrator.Start(appCtx); err != nil {
		log.WithError(err).Error("Scheduler started with errors")
	}

	loader.Watch(func(next *config.Config) {
		if err := app.Reload(next); err != nil {
			log.WithError(err).Error("Failed to apply reloaded configuration")
			return
		}
		log.Info("Configuration reloaded")
	}, func(err error) {
		log.WithError(err).Warn("Ignoring invalid configuration change")
	})

	var queue api.Queue
	var dispatchProducer *orchKafka.DispatchProducer
	if cfg.Kafka.Enabled() {
		dispatchProducer = &orchKafka.DispatchProducer{Writer: orchKafka.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.DispatchTopic)}
		queue = dispatchProducer
	}

	var healthServer *health.Server
	if cfg.GRPC.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.HealthAddr)
		if err != nil {
			log.WithError(err).Fatal("Failed to listen for grpc health")
		}
		healthServer = health.NewServer(log)
		go func() {
			if err := healthServer.Serve(lis); err != nil {
				log.WithError(err).Error("grpc health server stopped")
			}
		}()
		healthServer.SetServing(true)
	}

	hlog.SetOutput(os.Stdout)
	hlog.SetLevel(hlog.LevelInfo)

	h := server.Default(server.WithHostPorts(cfg.Server.Addr), server.WithExitWaitTime(cfg.Server.ExitWait))
	api.Register(h.Engine, api.NewAgentHandler(app.Orchestrator, queue))

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		hlog.Infof("Received signal: %s. Initiating graceful shutdown...", sig)

		if healthServer != nil {
			healthServer.SetServing(false)
		}

		shutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpShutdownCancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			hlog.Errorf("Hertz server shutdown error: %v", err)
		} else {
			hlog.Info("Hertz server gracefully stopped.")
		}

		if !app.Orchestrator.Shutdown() {
			log.Warn("In-flight dispatches did not finish within the drain grace")
		}
		appCancel()

		if dispatchProducer != nil {
			if err := dispatchProducer.Close(); err != nil {
				hlog.Errorf("Kafka dispatch producer close error: %v", err)
			}
		}
		if healthServer != nil {
			healthServer.Stop(shutdownCtx)
		}
		app.Close()
		hlog.Info("Agent Orchestrator gracefully shut down.")
	}()

	hlog.Infof("Agent Orchestrator fully initialized and starting Hertz server on %s...", cfg.Server.Addr)
	h.Spin()

	stdlog.Println("Agent Orchestrator has been shut down.")
}
