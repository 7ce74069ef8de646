// Command mccid runs the MCCI pub/sub routing and dispatch bus:
// automaxprocs, flag parsing, config load, component wiring, signal-driven
// graceful shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"github.com/ifreecarve/mccibus/internal/admission"
	"github.com/ifreecarve/mccibus/internal/config"
	"github.com/ifreecarve/mccibus/internal/logging"
	"github.com/ifreecarve/mccibus/internal/mcci"
	"github.com/ifreecarve/mccibus/internal/peer"
	"github.com/ifreecarve/mccibus/internal/production"
	"github.com/ifreecarve/mccibus/internal/transport"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootLogger := logging.New(logging.Config{Level: "info", Format: "json"})

	maxProcs := runtime.GOMAXPROCS(0)
	bootLogger.Info().Int("gomaxprocs", maxProcs).Msg("starting mccid")

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)

	settings := mcci.Settings{
		MyNodeAddress:      cfg.MyNodeAddress,
		MaxLocalRequests:   cfg.MaxLocalRequests,
		MaxRemoteRequests:  cfg.MaxRemoteRequests,
		BankSizeHost:       cfg.BankSizeHost,
		BankSizeVar:        cfg.BankSizeVar,
		BankSizeHostVar:    cfg.BankSizeHostVar,
		BankSizeVarRev:     cfg.BankSizeVarRev,
		BankSizeHostVarRev: cfg.BankSizeHostVarRev,
	}
	server := mcci.NewServer(settings, mcci.InMemorySchema{}, mcci.NewInMemoryRevisionSet(), mcci.NewInMemoryWorkingSet(), mcci.SystemClock{})

	guard := admission.NewGuard(admission.Config{
		MaxRequestsPerSec:  cfg.MaxRequestsPerSec,
		MaxGoroutines:      cfg.MaxGoroutines,
		CPURejectThreshold: cfg.CPURejectThreshold,
	}, logger)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	guard.StartMonitoring(rootCtx, cfg.MetricsInterval)

	listener := transport.NewListener(server, guard, logger, cfg.MaxClients)
	go listener.Run(rootCtx.Done())

	var peerConn *peer.Conn
	var peerSub *peer.Subscriber
	if cfg.NATSURL != "" {
		peerConn, err = peer.Connect(peer.Config{
			URL:             cfg.NATSURL,
			MaxReconnects:   -1,
			ReconnectWait:   2 * time.Second,
			ReconnectJitter: 500 * time.Millisecond,
			PingInterval:    20 * time.Second,
			MaxPingsOut:     3,
		}, logger)
		if err != nil {
			logger.Error().Err(err).Msg("peer forwarding disabled: failed to connect to nats")
		} else {
			peerSub = peer.NewSubscriber(peerConn, server, cfg.MyNodeAddress, logger, listener.Submit, listener.Deliver, guard.AcquireGoroutine, guard.ReleaseGoroutine)
			if err := peerSub.Start(); err != nil {
				logger.Error().Err(err).Msg("peer forwarding disabled: failed to subscribe")
				peerConn.Close()
				peerConn = nil
				peerSub = nil
			} else {
				listener.SetForwarder(peer.NewPublisher(peerConn, cfg.MyNodeAddress))
			}
		}
	}

	var productionConsumer *production.Consumer
	if brokers := splitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		productionConsumer, err = production.NewConsumer(production.Config{
			Brokers:       brokers,
			Topic:         cfg.KafkaTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, server, cfg.MyNodeAddress, logger, listener.Submit, listener.Deliver, guard.AcquireGoroutine, guard.ReleaseGoroutine)
		if err != nil {
			logger.Error().Err(err).Msg("production ingestion disabled: failed to create consumer")
		} else if err := productionConsumer.Start(); err != nil {
			logger.Error().Err(err).Msg("production ingestion disabled: failed to start consumer")
			productionConsumer = nil
		}
	}

	timeoutTicker := time.NewTicker(cfg.TimeoutSweepInterval)
	go func() {
		for {
			select {
			case <-timeoutTicker.C:
				listener.Submit(server.EnforceTimeouts)
			case <-rootCtx.Done():
				return
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", listener)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	listener.Shutdown()
	timeoutTicker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during http shutdown")
	}

	if productionConsumer != nil {
		productionConsumer.Stop()
	}
	if peerSub != nil {
		peerSub.Stop()
	}
	if peerConn != nil {
		peerConn.Close()
	}
	cancel()
}

func splitBrokers(brokers string) []string {
	var result []string
	for _, b := range strings.Split(brokers, ",") {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
