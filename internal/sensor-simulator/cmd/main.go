package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/flood_monitor/internal/config"
	sensorSimulator "github.com/LeonardoBeccarini/flood_monitor/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/logger"
	"github.com/LeonardoBeccarini/flood_monitor/pkg/rabbitmq"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "sensor-simulator",
	Short: "Publish synthetic flood sensor readings",
	Long: `Publishes one reading per interval for a single station. The weather scenario
(calm, rising, storm) can be switched at runtime with a JSON message such as
{"scenario":"storm","duration":300000000000} on the station control topic.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

var bindings = map[string]string{
	"simulator.station_id": "station",
	"simulator.interval":   "interval",
	"simulator.scenario":   "scenario",
	"simulator.seed":       "seed",
	"mqtt.client_id":       "client-id",
	"mqtt.host":            "mqtt-host",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	f := rootCmd.Flags()
	f.String("station", "station-1", "station identifier")
	f.Duration("interval", 0, "publish interval")
	f.String("scenario", "calm", "initial scenario: calm, rising or storm")
	f.Int64("seed", 0, "random seed, 0 for time based")
	f.String("client-id", "sensor-simulator", "MQTT client ID")
	f.String("mqtt-host", "localhost", "MQTT broker host")
}

func run(cmd *cobra.Command, _ []string) error {
	v := config.New()
	for key, name := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	if logLevel != "" {
		v.Set("app.log_level", logLevel)
	}
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return err
	}
	sim := cfg.Simulator

	log, err := logger.New("sensor-simulator", cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	scenario, err := sensorSimulator.ParseScenario(sim.Scenario)
	if err != nil {
		return err
	}
	if sim.Interval <= 0 {
		return fmt.Errorf("simulator.interval must be positive, got %s", sim.Interval)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
		Host:         cfg.MQTT.Host,
		Port:         cfg.MQTT.Port,
		User:         cfg.MQTT.User,
		Password:     cfg.MQTT.Password,
		ClientID:     cfg.MQTT.ClientID,
		CleanSession: true,
		MaxRetries:   cfg.MQTT.ConnectRetries,
		MaxElapsed:   cfg.MQTT.ConnectTimeout,
	}, log.Named("mqtt"))
	if err != nil {
		return err
	}

	qos := byte(cfg.MQTT.QoS)
	controlTopic := strings.ReplaceAll(sim.ControlTopic, "{station}", sim.StationID)
	publisher := rabbitmq.NewPublisher(client, cfg.MQTT.SensorTopic, qos, log)
	consumer := rabbitmq.NewConsumer(client, controlTopic, qos, nil, log)

	gen := sensorSimulator.NewGenerator(sim.StationID, scenario, sim.Seed)
	log.Info("simulator started",
		zap.String("station", sim.StationID),
		zap.String("scenario", string(scenario)),
		zap.Duration("interval", sim.Interval),
		zap.String("control_topic", controlTopic))

	sensorSimulator.NewSensorSimulator(consumer, publisher, gen, sim.StationID, log).Start(ctx, sim.Interval)
	publisher.Close()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
