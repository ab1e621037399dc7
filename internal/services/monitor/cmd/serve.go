package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/services/monitor"
	"github.com/LeonardoBeccarini/flood_monitor/internal/services/notifier"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/dedup"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/logger"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/rabbitmq"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var serveBindings = map[string]string{
	"http.port":         "http-port",
	"grpc.port":         "grpc-port",
	"mqtt.host":         "mqtt-host",
	"mqtt.sensor_topic": "sensor-topic",
	"influx.enabled":    "influx",
}

func init() {
	f := serveCmd.Flags()
	f.Int("http-port", 8080, "HTTP listen port")
	f.Int("grpc-port", 50051, "gRPC health listen port")
	f.String("mqtt-host", "localhost", "MQTT broker host")
	f.String("sensor-topic", "sensors", "topic carrying sensor readings")
	f.Bool("influx", false, "persist readings to InfluxDB")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, serveBindings)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.App.Name, cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	classifier := alert.NewClassifier(cfg.Thresholds)
	state := monitor.NewState(classifier)

	// === MQTT ===
	mqttClient, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
		Host:         cfg.MQTT.Host,
		Port:         cfg.MQTT.Port,
		User:         cfg.MQTT.User,
		Password:     cfg.MQTT.Password,
		ClientID:     cfg.MQTT.ClientID,
		CleanSession: cfg.MQTT.CleanSession,
		MaxRetries:   cfg.MQTT.ConnectRetries,
		MaxElapsed:   cfg.MQTT.ConnectTimeout,
	}, log.Named("mqtt"))
	if err != nil {
		return err
	}
	defer rabbitmq.CloseRabbitMQConn(mqttClient, log)
	qos := byte(cfg.MQTT.QoS)
	consumer := rabbitmq.NewConsumer(mqttClient, cfg.MQTT.SensorTopic, qos, nil, log.Named("consumer"))

	// === Notification sinks ===
	sinks := notifier.Multi{
		notifier.NewMQTTNotifier(func(topic string) rabbitmq.IPublisher {
			return rabbitmq.NewPublisher(mqttClient, topic, qos, log)
		}, cfg.MQTT.AlertTopicTemplate),
	}
	if cfg.Redis.Enabled {
		rc, err := notifier.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rc.Close()
		sinks = append(sinks, notifier.NewRedisNotifier(rc, cfg.Redis.Channel))
		log.Info("redis alert sink enabled", zap.String("addr", cfg.Redis.Addr), zap.String("channel", cfg.Redis.Channel))
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, notifier.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout,
			cfg.Webhook.BreakerFailures, cfg.Webhook.BreakerOpenFor))
		log.Info("webhook alert sink enabled", zap.String("url", cfg.Webhook.URL))
	}

	// === InfluxDB ===
	var (
		writer  *monitor.Writer
		history monitor.HistoryWriter
		querier monitor.Querier
	)
	if cfg.Influx.Enabled {
		opts := influxdb2.DefaultOptions().
			SetBatchSize(uint(cfg.Influx.BatchSize)).
			SetFlushInterval(uint(cfg.Influx.FlushInterval.Milliseconds()))
		influx := influxdb2.NewClientWithOptions(cfg.Influx.URL, cfg.Influx.Token, opts)
		defer influx.Close()
		writeAPI := influx.WriteAPI(cfg.Influx.Org, cfg.Influx.Bucket)
		defer writeAPI.Flush()

		writer = monitor.NewWriter(writeAPI, cfg.Influx.Measurement, log.Named("influx"))
		history = writer
		querier = influx.QueryAPI(cfg.Influx.Org)
	}

	// === Service ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hub := monitor.NewHub(state.Latest, log.Named("ws"))
	go hub.Run(ctx)

	svc, err := monitor.NewService(monitor.Options{
		Consumer:      consumer,
		Classifier:    classifier,
		State:         state,
		Notifier:      sinks,
		History:       history,
		Deduper:       dedup.New(cfg.Dedup.TTL, cfg.Dedup.MaxKeys),
		Metrics:       monitor.NewMetrics(reg),
		Broadcaster:   hub,
		NotifyTimeout: cfg.App.NotifyTimeout,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	healthDeps := monitor.HealthDeps{MQTT: mqttClient, Writer: writer}

	// === HTTP ===
	hs := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler: monitor.NewHTTPMux(monitor.APIDeps{
			State:       state,
			Thresholds:  cfg.Thresholds,
			Health:      healthDeps,
			Querier:     querier,
			Bucket:      cfg.Influx.Bucket,
			Measurement: cfg.Influx.Measurement,
			Gatherer:    reg,
			Hub:         hub,
			Logger:      log.Named("http"),
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
	errCh := make(chan error, 3)
	go func() {
		log.Info("http listening", zap.Int("port", cfg.HTTP.Port))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// === gRPC health ===
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	gs := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(gs, healthSrv)
	go func() {
		log.Info("grpc health listening", zap.Int("port", cfg.GRPC.Port))
		if err := gs.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go monitor.WatchHealth(ctx, healthSrv, healthDeps.Ready, 5*time.Second)

	// === Consumer ===
	go func() {
		if err := svc.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("fatal error, shutting down", zap.Error(err))
		stop()
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()
	_ = hs.Shutdown(shCtx)
	gs.GracefulStop()
	return err
}
