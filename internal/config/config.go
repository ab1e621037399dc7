// Package config loads the flood monitor configuration.
// Priority: defaults < YAML file < environment < flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Influx     InfluxConfig     `mapstructure:"influx"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Simulator  SimulatorConfig  `mapstructure:"simulator"`
	Thresholds alert.Thresholds `mapstructure:"thresholds"`
}

type AppConfig struct {
	Name          string        `mapstructure:"name"`
	LogLevel      string        `mapstructure:"log_level"`
	NotifyTimeout time.Duration `mapstructure:"notify_timeout"`
}

type MQTTConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	ClientID           string        `mapstructure:"client_id"`
	CleanSession       bool          `mapstructure:"clean_session"`
	SensorTopic        string        `mapstructure:"sensor_topic"`
	AlertTopicTemplate string        `mapstructure:"alert_topic_template"`
	QoS                int           `mapstructure:"qos"`
	ConnectRetries     int           `mapstructure:"connect_retries"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
}

type InfluxConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	Org           string        `mapstructure:"org"`
	Bucket        string        `mapstructure:"bucket"`
	Measurement   string        `mapstructure:"measurement"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type HTTPConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
}

type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type WebhookConfig struct {
	URL             string        `mapstructure:"url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerOpenFor  time.Duration `mapstructure:"breaker_open_for"`
}

type DedupConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	MaxKeys int           `mapstructure:"max_keys"`
}

type SimulatorConfig struct {
	StationID    string        `mapstructure:"station_id"`
	Interval     time.Duration `mapstructure:"interval"`
	Scenario     string        `mapstructure:"scenario"`
	ControlTopic string        `mapstructure:"control_topic"`
	Seed         int64         `mapstructure:"seed"`
}

// envAliases keeps the variable names already used by the deployment manifests.
var envAliases = map[string][]string{
	"app.log_level":             {"LOG_LEVEL"},
	"mqtt.host":                 {"RABBITMQ_HOST", "MQTT_HOST"},
	"mqtt.port":                 {"RABBITMQ_PORT", "MQTT_PORT"},
	"mqtt.user":                 {"RABBITMQ_USER", "MQTT_USER"},
	"mqtt.password":             {"RABBITMQ_PASSWORD", "MQTT_PASS"},
	"mqtt.client_id":            {"MQTT_CLIENT_ID"},
	"mqtt.sensor_topic":         {"SENSOR_SUB_TOPIC"},
	"mqtt.alert_topic_template": {"ALERT_TOPIC_TEMPLATE"},
	"influx.enabled":            {"INFLUX_ENABLED"},
	"influx.url":                {"INFLUX_URL"},
	"influx.token":              {"INFLUX_TOKEN"},
	"influx.org":                {"INFLUX_ORG"},
	"influx.bucket":             {"INFLUX_BUCKET"},
	"influx.measurement":        {"MEASUREMENT"},
	"http.port":                 {"HTTP_PORT", "PORT"},
	"grpc.port":                 {"GRPC_PORT"},
	"redis.enabled":             {"REDIS_ENABLED"},
	"redis.addr":                {"REDIS_ADDR"},
	"redis.password":            {"REDIS_PASSWORD"},
	"redis.channel":             {"REDIS_CHANNEL"},
	"webhook.url":               {"ALERT_WEBHOOK_URL"},
	"simulator.station_id":      {"STATION_ID"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "flood-monitor")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.notify_timeout", 3*time.Second)

	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.user", "guest")
	v.SetDefault("mqtt.password", "guest")
	v.SetDefault("mqtt.client_id", "flood-monitor")
	v.SetDefault("mqtt.clean_session", false)
	v.SetDefault("mqtt.sensor_topic", "sensors")
	v.SetDefault("mqtt.alert_topic_template", "event/floodAlert/{station}")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.connect_retries", 5)
	v.SetDefault("mqtt.connect_timeout", 10*time.Second)

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.org", "flood")
	v.SetDefault("influx.bucket", "readings")
	v.SetDefault("influx.measurement", "sensor_reading")
	v.SetDefault("influx.batch_size", 10)
	v.SetDefault("influx.flush_interval", 200*time.Millisecond)

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_header_timeout", 5*time.Second)
	v.SetDefault("http.shutdown_grace", 5*time.Second)
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel", "flood_alerts")

	v.SetDefault("webhook.timeout", 3*time.Second)
	v.SetDefault("webhook.breaker_failures", 3)
	v.SetDefault("webhook.breaker_open_for", 30*time.Second)

	v.SetDefault("dedup.ttl", 2*time.Minute)
	v.SetDefault("dedup.max_keys", 10000)

	v.SetDefault("simulator.station_id", "station-1")
	v.SetDefault("simulator.interval", 10*time.Second)
	v.SetDefault("simulator.scenario", "calm")
	v.SetDefault("simulator.control_topic", "sensors/control/{station}")

	th := alert.DefaultThresholds()
	for _, f := range alert.Fields {
		v.SetDefault("thresholds."+string(f)+".warning", th.For(f).Warning)
		v.SetDefault("thresholds."+string(f)+".danger", th.For(f).Danger)
	}
}

// New returns a viper instance with defaults and environment bindings.
// FLOOD_<SECTION>_<KEY> works for every key; envAliases add the legacy names.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FLOOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key, "FLOOD_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		_ = v.BindEnv(args...)
	}
	return v
}

// Load reads path (optional) into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.MQTT.Host) == "" {
		errs = append(errs, errors.New("mqtt.host is required"))
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port))
	}
	if strings.TrimSpace(c.MQTT.SensorTopic) == "" {
		errs = append(errs, errors.New("mqtt.sensor_topic is required"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS))
	}
	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "") {
		errs = append(errs, errors.New("influx config incomplete"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	return errors.Join(errs...)
}
