package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"agent-orchestration-service/internal/bootstrap"
	"agent-orchestration-service/internal/config"
	"agent-orchestration-service/internal/logging"
	"agent-orchestration-service/internal/orchestrator/events"
	orchKafka "agent-orchestration-service/internal/orchestrator/kafka"
	"agent-orchestration-service/internal/orchestrator/services"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.NewLoader(*configFile).Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		stdlog.Fatalf("Failed to initialize logging: %v", err)
	}
	if !cfg.Kafka.Enabled() {
		log.Fatal("kafka.brokers must be set for the worker")
	}
	log.Info("Starting Agent Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.WithField("signal", sig.String()).Info("Shutdown signal received, stopping consumer and draining the running dispatch")
		cancel()
	}()

	// Timers stay with the orchestrator; the worker only runs queued dispatches.
	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{DisableScheduler: true, Owner: services.OwnerWorker})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize worker")
	}
	defer app.Close()

	consumer := &orchKafka.DispatchConsumer{
		Reader: orchKafka.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.DispatchTopic, cfg.Kafka.GroupID),
		Handler: func(ctx context.Context, req events.DispatchRequest) error {
			res, err := app.Orchestrator.DispatchManual(ctx, req.AgentType, req.UserID, req.Input)
			if err != nil {
				return err
			}
			if !res.Success {
				log.WithFields(logrus.Fields{"request_id": req.RequestID, "task_id": res.TaskID}).Info("queued dispatch finished as failed: " + res.Error)
			}
			return nil
		},
		Log:        log.WithField("component", "dispatch-consumer"),
		DrainGrace: cfg.Scheduler.DrainGrace,
	}
	log.WithField("topic", cfg.Kafka.DispatchTopic).Info("Agent Worker listening for dispatch requests...")
	consumer.Run(ctx)

	if err := consumer.Close(); err != nil {
		log.WithError(err).Warn("Error closing kafka reader")
	}
	if !app.Orchestrator.Shutdown() {
		log.Warn("In-flight dispatches did not finish within the drain grace")
	}
	log.Info("Agent Worker has been shut down.")
}
