// Package config loads daemon configuration from an optional YAML file, a
// .env file and the environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/sleep-monitor/internal/gpio"
	"github.com/sweeney/sleep-monitor/internal/schedule"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	BLE      BLEConfig      `yaml:"ble"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Pose     PoseConfig     `yaml:"pose"`
	Schedule ScheduleConfig `yaml:"schedule"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Influx   InfluxConfig   `yaml:"influx"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Firebase FirebaseConfig `yaml:"firebase"`
	HTTP     HTTPConfig     `yaml:"http"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MonitorConfig struct {
	FlushInterval       time.Duration `yaml:"flush_interval"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	PublishTimeout      time.Duration `yaml:"publish_timeout"`
	BrightnessThreshold float64       `yaml:"brightness_threshold"`
	// TickInterval drives rounds from a timer when BLE is disabled.
	TickInterval time.Duration `yaml:"tick_interval"`
}

type BLEConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DeviceName     string `yaml:"device_name"`
	Characteristic string `yaml:"characteristic"`
	Buffer         int    `yaml:"buffer"`
	// ScanTimeout bounds each search for the wearable. Not finding it on
	// the first search is fatal.
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

type GPIOConfig struct {
	Chip         string        `yaml:"chip"`
	ServoPin     int           `yaml:"servo_pin"`
	IndicatorPin int           `yaml:"indicator_pin"`
	ServoSettle  time.Duration `yaml:"servo_settle"`
}

type SensorsConfig struct {
	IIORoot            string        `yaml:"iio_root"`
	DHTDevice          string        `yaml:"dht_device"`
	ADCDevice          string        `yaml:"adc_device"`
	BrightnessChannel  int           `yaml:"brightness_channel"`
	SoundChannel       int           `yaml:"sound_channel"`
	SoundWindow        time.Duration `yaml:"sound_window"`
	CalibrationSamples int           `yaml:"calibration_samples"`
}

type PoseConfig struct {
	// Command is the classifier argv. Empty disables posture.
	Command  []string      `yaml:"command"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxAge   time.Duration `yaml:"max_age"`
	// Stream starts Command once and takes one label per output line
	// instead of rerunning it every Interval.
	Stream bool `yaml:"stream"`
}

// ScheduleConfig is the light window used until the dashboard sends one.
type ScheduleConfig struct {
	On  string `yaml:"on"`
	Off string `yaml:"off"`
}

type MQTTConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	TLS                bool   `yaml:"tls"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	ClientID           string `yaml:"client_id"`
	BufferSize         int    `yaml:"buffer_size"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	Device string `yaml:"device"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type FirebaseConfig struct {
	URL     string        `yaml:"url"`
	Auth    string        `yaml:"auth"`
	Timeout time.Duration `yaml:"timeout"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads path (optional), then .env, then the environment, applies
// defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides fields from the deployment's environment variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("MQTT_HOST", &c.MQTT.Host)
	str("MQTT_USERNAME", &c.MQTT.Username)
	str("MQTT_PASSWORD", &c.MQTT.Password)
	str("INFLUX_URL", &c.Influx.URL)
	str("INFLUX_TOKEN", &c.Influx.Token)
	str("INFLUX_ORG", &c.Influx.Org)
	str("INFLUX_BUCKET", &c.Influx.Bucket)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("DATABASE_URL", &c.Postgres.DSN)
	str("FIREBASE_URL", &c.Firebase.URL)
	str("FIREBASE_AUTH", &c.Firebase.Auth)
	str("HTTP_ADDR", &c.HTTP.Addr)

	if v := getenv("MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MQTT_PORT: %w", err)
		}
		c.MQTT.Port = port
		if port == 8883 {
			c.MQTT.TLS = true
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Monitor.FlushInterval == 0 {
		c.Monitor.FlushInterval = 10 * time.Second
	}
	if c.Monitor.ReadTimeout == 0 {
		c.Monitor.ReadTimeout = 2 * time.Second
	}
	if c.Monitor.PublishTimeout == 0 {
		c.Monitor.PublishTimeout = 5 * time.Second
	}
	if c.Monitor.BrightnessThreshold == 0 {
		c.Monitor.BrightnessThreshold = 60
	}
	if c.Monitor.TickInterval == 0 {
		c.Monitor.TickInterval = time.Second
	}
	if c.BLE.Buffer == 0 {
		c.BLE.Buffer = 16
	}
	if c.BLE.ScanTimeout == 0 {
		c.BLE.ScanTimeout = 30 * time.Second
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = gpio.DefaultChip
	}
	if c.GPIO.ServoPin == 0 {
		c.GPIO.ServoPin = gpio.PinServo
	}
	if c.GPIO.IndicatorPin == 0 {
		c.GPIO.IndicatorPin = gpio.PinIndicator
	}
	if c.GPIO.ServoSettle == 0 {
		c.GPIO.ServoSettle = 300 * time.Millisecond
	}
	if c.Sensors.IIORoot == "" {
		c.Sensors.IIORoot = "/sys/bus/iio/devices"
	}
	if c.Sensors.DHTDevice == "" {
		c.Sensors.DHTDevice = "dht11"
	}
	if c.Sensors.ADCDevice == "" {
		c.Sensors.ADCDevice = "ads1115"
	}
	if c.Sensors.SoundChannel == 0 && c.Sensors.BrightnessChannel == 0 {
		c.Sensors.SoundChannel = 1
	}
	if c.Sensors.SoundWindow == 0 {
		c.Sensors.SoundWindow = 50 * time.Millisecond
	}
	if c.Sensors.CalibrationSamples == 0 {
		c.Sensors.CalibrationSamples = 100
	}
	if c.Pose.Interval == 0 {
		c.Pose.Interval = time.Second
	}
	if c.Pose.Timeout == 0 {
		c.Pose.Timeout = 3 * time.Second
	}
	if c.Pose.MaxAge == 0 {
		c.Pose.MaxAge = 5 * time.Second
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
		if c.MQTT.TLS {
			c.MQTT.Port = 8883
		}
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = 100
	}
	if c.Influx.Device == "" {
		c.Influx.Device = "raspberrypi"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "sleep-monitor:readings"
	}
	if c.Redis.MaxLen == 0 {
		c.Redis.MaxLen = 10_000
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = "sleep_readings"
	}
	if c.Firebase.Timeout == 0 {
		c.Firebase.Timeout = 5 * time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}

func (c *Config) validate() error {
	if c.Monitor.FlushInterval <= 0 {
		return fmt.Errorf("monitor.flush_interval must be positive")
	}
	if c.Monitor.ReadTimeout <= 0 {
		return fmt.Errorf("monitor.read_timeout must be positive")
	}
	if c.Monitor.BrightnessThreshold <= 0 || c.Monitor.BrightnessThreshold > 100 {
		return fmt.Errorf("monitor.brightness_threshold must be in (0,100], got %v", c.Monitor.BrightnessThreshold)
	}
	if c.GPIO.ServoPin < 0 || c.GPIO.IndicatorPin < 0 {
		return fmt.Errorf("gpio pins must not be negative")
	}
	if c.GPIO.ServoPin == c.GPIO.IndicatorPin {
		return fmt.Errorf("gpio.servo_pin and gpio.indicator_pin must differ")
	}
	if c.Sensors.BrightnessChannel < 0 || c.Sensors.SoundChannel < 0 {
		return fmt.Errorf("adc channels must not be negative")
	}
	if c.Sensors.BrightnessChannel == c.Sensors.SoundChannel {
		return fmt.Errorf("sensors.brightness_channel and sensors.sound_channel must differ")
	}
	if (c.Schedule.On == "") != (c.Schedule.Off == "") {
		return fmt.Errorf("schedule.on and schedule.off must be set together")
	}
	if _, err := c.Schedule.Window(); err != nil {
		return err
	}
	if c.Influx.URL != "" && (c.Influx.Org == "" || c.Influx.Bucket == "") {
		return fmt.Errorf("influx.org and influx.bucket are required with influx.url")
	}
	return nil
}

// Window parses On and Off. It returns nil when no schedule is configured.
func (s ScheduleConfig) Window() (*ClockWindow, error) {
	if s.On == "" && s.Off == "" {
		return nil, nil
	}
	var w ClockWindow
	var err error
	if w.OnHour, w.OnMinute, err = parseClock(s.On); err != nil {
		return nil, fmt.Errorf("schedule.on: %w", err)
	}
	if w.OffHour, w.OffMinute, err = parseClock(s.Off); err != nil {
		return nil, fmt.Errorf("schedule.off: %w", err)
	}
	return &w, nil
}

// ClockWindow is a parsed ScheduleConfig.
type ClockWindow struct {
	OnHour, OnMinute   int
	OffHour, OffMinute int
}

func parseClock(s string) (int, int, error) {
	h, m, err := schedule.ParseClock(s)
	if err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("clock %q out of range", s)
	}
	return h, m, nil
}
