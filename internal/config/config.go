package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"
	envPrefix       = "SWIPEBRIDGE"
	configEnv       = envPrefix + "_CONFIG"
	configName      = "swipebridge"
	configType      = "toml"
	systemConfigDir = "/etc/swipebridge"
	dataDir         = "/var/lib/swipebridge"
)

// Mode selects what the bridge does with each feature frame.
type Mode string

const (
	ModeGateway Mode = "gateway"
	ModePredict Mode = "predict"
)

type Config struct {
	Mode      Mode            `mapstructure:"-"`
	LogLevel  string          `mapstructure:"log_level"`
	PIDFile   string          `mapstructure:"pid_file"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Store     StoreConfig     `mapstructure:"store"`
	Model     ModelConfig     `mapstructure:"model"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type SerialConfig struct {
	Device        string        `mapstructure:"device"`
	BaudRate      int           `mapstructure:"baud_rate"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxLineLength int           `mapstructure:"max_line_length"`
}

type BrokerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Topic           string        `mapstructure:"topic"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	CAFile          string        `mapstructure:"ca_file"`
	ClientID        string        `mapstructure:"client_id"`
	KeepAlive       time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	AckTimeout      time.Duration `mapstructure:"ack_timeout"`
	QueueSize       int           `mapstructure:"queue_size"`
	PublishAttempts int           `mapstructure:"publish_attempts"`
	DrainTimeout    time.Duration `mapstructure:"drain_timeout"`
	Retry           RetryConfig   `mapstructure:"retry"`
}

// RetryConfig bounds one round of reconnect attempts. After a round is
// exhausted the publisher waits Cooldown before starting the next one.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type ModelConfig struct {
	Scaler string `mapstructure:"scaler"`
	Forest string `mapstructure:"forest"`
	Labels string `mapstructure:"labels"`
}

type JournalConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	DBPath        string        `mapstructure:"db_path"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type TelemetryConfig struct {
	Listen string `mapstructure:"listen"`
}

// Option adjusts how Load locates its sources.
type Option func(*options)

type options struct {
	configPath string
	mode       Mode
}

// WithConfigFile points Load at an explicit file. A missing explicit file is
// an error, unlike the default search path.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithMode records the operating mode so Validate can check mode-specific keys.
func WithMode(mode Mode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("pid_file", "/run/swipebridge.pid")

	v.SetDefault("serial.device", "/dev/rfcomm0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.read_timeout", time.Second)
	v.SetDefault("serial.poll_interval", 50*time.Millisecond)
	v.SetDefault("serial.max_line_length", 4096)

	v.SetDefault("broker.host", "")
	v.SetDefault("broker.port", 8883)
	v.SetDefault("broker.topic", "")
	v.SetDefault("broker.username", "")
	v.SetDefault("broker.password", "")
	v.SetDefault("broker.ca_file", "")
	v.SetDefault("broker.client_id", "")
	v.SetDefault("broker.keep_alive", 60*time.Second)
	v.SetDefault("broker.connect_timeout", 10*time.Second)
	v.SetDefault("broker.ack_timeout", 10*time.Second)
	v.SetDefault("broker.queue_size", 256)
	v.SetDefault("broker.publish_attempts", 3)
	v.SetDefault("broker.drain_timeout", 5*time.Second)
	v.SetDefault("broker.retry.max_attempts", 5)
	v.SetDefault("broker.retry.initial_delay", 500*time.Millisecond)
	v.SetDefault("broker.retry.max_delay", 30*time.Second)
	v.SetDefault("broker.retry.cooldown", 30*time.Second)

	v.SetDefault("store.path", filepath.Join(dataDir, "swipes.csv"))

	v.SetDefault("model.scaler", filepath.Join(dataDir, "model", "scaler.json"))
	v.SetDefault("model.forest", filepath.Join(dataDir, "model", "forest.json"))
	v.SetDefault("model.labels", filepath.Join(dataDir, "model", "labels.json"))

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.db_path", filepath.Join(dataDir, "journal.db"))
	v.SetDefault("journal.batch_size", 32)
	v.SetDefault("journal.flush_interval", 5*time.Second)

	v.SetDefault("telemetry.listen", "")
}

// Load resolves the configuration from defaults, the config file, the
// environment and flags, in increasing order of precedence. flags may be nil.
func Load(flags *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{configPath: os.Getenv(configEnv)}
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			o.configPath = f.Value.String()
		}
	}
	for _, opt := range opts {
		opt(o)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(systemConfigDir)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
		logger.Debug().Msg("No config file found, using defaults")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.Mode = o.mode

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = configName + "-" + uuid.NewString()
	}

	return cfg, nil
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"log-level":     "log_level",
	"pid-file":      "pid_file",
	"device":        "serial.device",
	"baud":          "serial.baud_rate",
	"poll-interval": "serial.poll_interval",
	"broker-host":   "broker.host",
	"broker-port":   "broker.port",
	"topic":         "broker.topic",
	"ca-file":       "broker.ca_file",
	"store":         "store.path",
	"scaler":        "model.scaler",
	"forest":        "model.forest",
	"labels":        "model.labels",
	"journal":       "journal.enabled",
	"metrics-addr":  "telemetry.listen",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

// RegisterFlags declares the flags Load understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("pid-file", "", "PID file guarding the serial device")
	fs.String("device", "", "Serial device path")
	fs.Int("baud", 0, "Serial baud rate")
	fs.Duration("poll-interval", 0, "Sleep between idle serial polls")
	fs.String("broker-host", "", "MQTT broker host")
	fs.Int("broker-port", 0, "MQTT broker TLS port")
	fs.String("topic", "", "MQTT topic to publish frames to")
	fs.String("ca-file", "", "CA certificate used to verify the broker")
	fs.String("store", "", "Append-only CSV store for forwarded lines")
	fs.String("scaler", "", "Scaler artifact")
	fs.String("forest", "", "Random forest artifact")
	fs.String("labels", "", "Label map artifact")
	fs.Bool("journal", false, "Record frame outcomes in the SQLite journal")
	fs.String("metrics-addr", "", "Listen address for the Prometheus endpoint")
}
