// Command sleep-monitor samples bedroom sensors and wearable telemetry, drives
// the light from a schedule, and publishes aggregated readings to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/sweeney/sleep-monitor/internal/actuator"
	"github.com/sweeney/sleep-monitor/internal/ble"
	"github.com/sweeney/sleep-monitor/internal/config"
	"github.com/sweeney/sleep-monitor/internal/gpio"
	"github.com/sweeney/sleep-monitor/internal/logging"
	"github.com/sweeney/sleep-monitor/internal/logic"
	"github.com/sweeney/sleep-monitor/internal/metrics"
	"github.com/sweeney/sleep-monitor/internal/monitor"
	"github.com/sweeney/sleep-monitor/internal/mqtt"
	"github.com/sweeney/sleep-monitor/internal/pose"
	"github.com/sweeney/sleep-monitor/internal/schedule"
	"github.com/sweeney/sleep-monitor/internal/sensor"
	"github.com/sweeney/sleep-monitor/internal/shutdown"
	"github.com/sweeney/sleep-monitor/internal/sink"
	"github.com/sweeney/sleep-monitor/internal/status"
	"github.com/sweeney/sleep-monitor/internal/web"
)

const serviceName = "sleep-monitor"

// bleRetry is the pause between wearable reconnect attempts.
const bleRetry = 5 * time.Second

// poseRestart is the pause before restarting a streaming classifier.
const poseRestart = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	printState := flag.Bool("print-state", false, "Read every sensor once, print and exit")
	httpAddr := flag.String("http", "", `HTTP status address, overrides config ("off" disables)`)
	logLevel := flag.String("log-level", "", "Log level, overrides config")
	noBLE := flag.Bool("no-ble", false, "Sample on a timer instead of wearable notifications")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	applyFlags(cfg, *httpAddr, *logLevel, *noBLE)

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, *printState, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func applyFlags(cfg *config.Config, httpAddr, logLevel string, noBLE bool) {
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if noBLE {
		cfg.BLE.Enabled = false
	}
}

func run(cfg *config.Config, printState bool, logger *zap.Logger) error {
	coord := shutdown.New(context.Background(), logger)
	ctx := coord.Context()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go coord.Watch(sigCh)

	sensors := buildSensors(ctx, cfg.Sensors, logger)

	var poseCmd *pose.Command
	if len(cfg.Pose.Command) > 0 {
		c, err := pose.NewCommand(cfg.Pose.Command)
		if err != nil {
			return err
		}
		poseCmd = c
	}

	// Print state mode
	if printState {
		var src pose.Source
		if poseCmd != nil {
			src = poseCmd
		}
		return printSensorState(ctx, os.Stdout, sensors, src, cfg.Pose.Timeout, cfg.Monitor.ReadTimeout)
	}

	var poseSrc pose.Source
	if poseCmd != nil {
		latest := pose.NewLatest(cfg.Pose.MaxAge, nil)
		if cfg.Pose.Stream {
			go latest.Follow(ctx, poseCmd, poseRestart, logger)
		} else {
			go latest.Poll(ctx, poseCmd, cfg.Pose.Interval, cfg.Pose.Timeout, logger)
		}
		poseSrc = latest
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Initialize GPIO
	servoLine, err := gpio.NewRealWriter(cfg.GPIO.Chip, cfg.GPIO.ServoPin, serviceName+"-servo")
	if err != nil {
		return fmt.Errorf("init servo gpio: %w", err)
	}
	light := actuator.New("light", actuator.NewServo(servoLine, cfg.GPIO.ServoSettle), logger, m)
	defer light.Close()

	ledLine, err := gpio.NewRealWriter(cfg.GPIO.Chip, cfg.GPIO.IndicatorPin, serviceName+"-indicator")
	if err != nil {
		return fmt.Errorf("init indicator gpio: %w", err)
	}
	indicator := actuator.New("indicator", actuator.NewLED(ledLine), logger, m)
	defer indicator.Close()

	// Initialize MQTT
	if cfg.MQTT.Host == "" {
		return errors.New("mqtt host is required (MQTT_HOST)")
	}
	mqttCfg := mqtt.Config{
		Host:               cfg.MQTT.Host,
		Port:               cfg.MQTT.Port,
		Username:           cfg.MQTT.Username,
		Password:           cfg.MQTT.Password,
		TLS:                cfg.MQTT.TLS,
		InsecureSkipVerify: cfg.MQTT.InsecureSkipVerify,
		ClientID:           cfg.MQTT.ClientID,
		BufferSize:         cfg.MQTT.BufferSize,
	}
	publisher, err := mqtt.NewRealPublisher(mqttCfg, logger, m)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}

	sinks := sink.NewMulti(logger, m, publisher)
	addSecondarySinks(ctx, cfg, sinks, logger)
	defer sinks.Close()

	store := schedule.NewStore(logger)
	initial, err := cfg.Schedule.Window()
	if err != nil {
		return err
	}
	if initial != nil {
		store.SetWindow(initial.OnHour, initial.OnMinute, initial.OffHour, initial.OffMinute)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		FlushIntervalMs:     cfg.Monitor.FlushInterval.Milliseconds(),
		ReadTimeoutMs:       cfg.Monitor.ReadTimeout.Milliseconds(),
		BrightnessThreshold: cfg.Monitor.BrightnessThreshold,
		Broker:              mqttCfg.BrokerURL(),
		HTTPPort:            cfg.HTTP.Addr,
		Sinks:               sinks.Names(),
	})
	tracker.SetWindow(store.Snapshot())
	tracker.SetMQTTConnected(publisher.IsConnected())

	if err := publisher.Subscribe(mqtt.TopicSetting, settingHandler(store, tracker, m)); err != nil {
		logger.Warn("setting subscription failed", zap.Error(err))
	}

	mon, err := monitor.New(monitor.Config{
		FlushInterval:       cfg.Monitor.FlushInterval,
		ReadTimeout:         cfg.Monitor.ReadTimeout,
		PublishTimeout:      cfg.Monitor.PublishTimeout,
		BrightnessThreshold: cfg.Monitor.BrightnessThreshold,
	}, monitor.Deps{
		Sensors:   sensors,
		Pose:      poseSrc,
		Schedule:  store,
		Light:     light,
		Indicator: indicator,
		Sink:      sinks,
		Metrics:   m,
		Tracker:   tracker,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	startup := mqtt.SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true}
	if err := publisher.PublishSystem(startup); err != nil {
		logger.Warn("failed to publish startup event", zap.Error(err))
	} else {
		logger.Info("published startup event")
	}

	// Start HTTP status server
	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		srv = web.New(cfg.HTTP.Addr, tracker, reg, nil)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		logger.Info("http status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	registerQuiesce(coord, mon, publisher, srv, time.Now)

	var notes <-chan []byte
	var tick <-chan time.Time
	var transportErr <-chan error
	if cfg.BLE.Enabled {
		bleCfg := ble.Config{
			DeviceName:     cfg.BLE.DeviceName,
			Characteristic: cfg.BLE.Characteristic,
			Buffer:         cfg.BLE.Buffer,
			ScanTimeout:    cfg.BLE.ScanTimeout,
		}
		ch := make(chan []byte, cfg.BLE.Buffer)
		dial := func(ctx context.Context) (ble.Source, error) {
			c, err := ble.Dial(ctx, bleCfg, logger)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
		errCh := make(chan error, 1)
		go func() { errCh <- pumpBLE(ctx, dial, ch, bleRetry, logger) }()
		notes = ch
		transportErr = errCh
	} else {
		ticker := time.NewTicker(cfg.Monitor.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	logger.Info("started",
		zap.Duration("flush", cfg.Monitor.FlushInterval),
		zap.Bool("ble", cfg.BLE.Enabled),
		zap.String("broker", mqttCfg.BrokerURL()),
		zap.Strings("sinks", sinks.Names()))

	err = runLoop(ctx, mon, publisher, tracker, notes, tick, transportErr, logger)
	if err != nil {
		coord.Trigger("ERROR")
	}
	if failed := coord.Quiesce(); failed > 0 {
		logger.Warn("shutdown incomplete", zap.Int("failed_steps", failed))
	}
	return err
}

// runLoop feeds notifications and ticks to the monitor until ctx is done or
// the transport reports an error it cannot recover from. tick is nil when
// the wearable drives sampling.
func runLoop(ctx context.Context, mon *monitor.Monitor, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, notes <-chan []byte, tick <-chan time.Time, transportErr <-chan error, logger *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-transportErr:
			if err != nil {
				return err
			}
			transportErr = nil

		case p, ok := <-notes:
			if !ok {
				logger.Warn("notification stream closed")
				notes = nil
				continue
			}
			if _, err := mon.HandleNotification(ctx, p); err != nil {
				logger.Debug("round finished with publish errors", zap.Error(err))
			}

		case <-tick:
			if _, err := mon.Tick(ctx); err != nil {
				logger.Debug("round finished with publish errors", zap.Error(err))
			}
		}

		if tracker != nil && mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}
}

// registerQuiesce orders the shutdown steps: light and indicator off first,
// then the retained SHUTDOWN event, then the HTTP server. Sinks and GPIO
// lines are closed by run's defers afterwards.
func registerQuiesce(coord *shutdown.Coordinator, mon *monitor.Monitor, pub mqtt.Publisher, srv *web.Server, now func() time.Time) {
	coord.OnQuiesce("actuators off", mon.ForceOff)
	coord.OnQuiesce("shutdown event", func() error {
		reason := coord.Reason()
		if reason == "" {
			reason = "UNKNOWN"
		}
		return pub.PublishSystem(mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    reason,
			Retained:  true,
		})
	})
	if srv != nil {
		coord.OnQuiesce("http server", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}
}

// settingHandler applies schedule updates from the dashboard and counts the
// ones it rejects.
func settingHandler(store *schedule.Store, tracker *status.Tracker, m *metrics.Metrics) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		if err := store.HandleMessage(topic, payload); err != nil {
			m.Malformed.WithLabelValues("setting").Inc()
			tracker.Count(func(c *status.Counts) { c.ScheduleRejected++ })
			return err
		}
		tracker.SetWindow(store.Snapshot())
		return nil
	}
}

// pumpBLE keeps a wearable connection open and forwards its notifications to
// out until ctx is done, redialing after every disconnect. It returns an
// error when the first dial fails or the adapter goes away; later dial
// failures are retried.
func pumpBLE(ctx context.Context, dial func(context.Context) (ble.Source, error), out chan<- []byte, retry time.Duration, logger *zap.Logger) error {
	connected := false
	for {
		src, err := dial(ctx)
		switch {
		case err == nil:
			connected = true
			forward(ctx, src, out, logger)
			src.Close()
		case ctx.Err() != nil:
			return nil
		case !connected, errors.Is(err, ble.ErrAdapter):
			return fmt.Errorf("wearable: %w", err)
		default:
			logger.Warn("wearable reconnect failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}

func forward(ctx context.Context, src ble.Source, out chan<- []byte, logger *zap.Logger) {
	notes := src.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-notes:
			if !ok {
				logger.Warn("wearable disconnected")
				return
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}
}

// buildSensors locates the IIO devices. A device that cannot be found still
// gets a source, one that always fails, so the loop records the fault and
// substitutes the default instead of refusing to start.
func buildSensors(ctx context.Context, cfg config.SensorsConfig, logger *zap.Logger) []sensor.Named {
	var temp, humid, brightness, sound sensor.Source

	dht, err := sensor.FindIIODevice(cfg.IIORoot, cfg.DHTDevice)
	if err != nil {
		logger.Warn("temperature/humidity sensor unavailable", zap.Error(err))
		temp, humid = failing(err), failing(err)
	} else {
		temp = sensor.NewAttr(dht, sensor.AttrTemperature, 0.001)
		humid = sensor.NewAttr(dht, sensor.AttrHumidity, 0.001)
	}

	adc, err := sensor.FindIIODevice(cfg.IIORoot, cfg.ADCDevice)
	if err != nil {
		logger.Warn("adc unavailable", zap.Error(err))
		brightness, sound = failing(err), failing(err)
	} else {
		brightness = &sensor.Brightness{Raw: sensor.NewAttr(adc, sensor.ADCChannelAttr(cfg.BrightnessChannel), 1)}
		sound = buildSound(ctx, adc, cfg, logger)
	}

	return []sensor.Named{
		{Metric: logic.MetricTemperature, Source: temp},
		{Metric: logic.MetricHumidity, Source: humid},
		{Metric: logic.MetricBrightness, Source: brightness},
		{Metric: logic.MetricSound, Source: sound},
	}
}

func buildSound(ctx context.Context, adc string, cfg config.SensorsConfig, logger *zap.Logger) sensor.Source {
	scale, err := sensor.ReadScale(adc, cfg.SoundChannel)
	if err != nil {
		logger.Warn("sound channel scale unavailable", zap.Error(err))
		return failing(err)
	}
	snd := sensor.NewSound(sensor.NewAttr(adc, sensor.ADCChannelAttr(cfg.SoundChannel), scale), cfg.SoundWindow)
	offset, err := snd.Calibrate(ctx, cfg.CalibrationSamples, time.Millisecond)
	if err != nil {
		logger.Warn("sound calibration failed", zap.Error(err))
	} else {
		logger.Info("sound calibrated", zap.Float64("offset_volts", offset))
	}
	return snd
}

func failing(err error) sensor.Source {
	return sensor.SourceFunc(func(context.Context) (float64, error) { return 0, err })
}

// addSecondarySinks attaches every configured store. A store that cannot be
// reached at startup is skipped; MQTT stays the primary sink regardless.
func addSecondarySinks(ctx context.Context, cfg *config.Config, sinks *sink.Multi, logger *zap.Logger) {
	if cfg.Influx.URL != "" {
		sinks.Add(sink.NewInflux(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket, cfg.Influx.Device))
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pctx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, stream sink disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			client.Close()
		} else {
			sinks.Add(sink.NewRedisStream(client, cfg.Redis.Stream, cfg.Redis.MaxLen))
		}
	}

	if cfg.Postgres.DSN != "" {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pg, err := sink.OpenPostgres(pctx, cfg.Postgres.DSN, cfg.Postgres.Table)
		if err == nil {
			if err = pg.EnsureSchema(pctx); err != nil {
				pg.Close()
			}
		}
		cancel()
		if err != nil {
			logger.Warn("postgres unavailable, sink disabled", zap.Error(err))
		} else {
			sinks.Add(pg)
		}
	}

	if cfg.Firebase.URL != "" {
		sinks.Add(sink.NewFirebase(cfg.Firebase.URL, cfg.Firebase.Auth, cfg.Firebase.Timeout))
	}
}

// printSensorState reads every source once and writes one line per metric.
func printSensorState(ctx context.Context, w io.Writer, sensors []sensor.Named, poseSrc pose.Source, poseTimeout, readTimeout time.Duration) error {
	failed := 0
	for _, r := range sensor.ReadAll(ctx, sensors, readTimeout, 0) {
		if !r.OK() {
			failed++
			fmt.Fprintf(w, "%s: error: %v\n", r.Metric, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s: %.2f\n", r.Metric, r.Value)
	}
	if poseSrc != nil {
		label, err := pose.ReadBounded(ctx, poseSrc, poseTimeout)
		if err != nil && !errors.Is(err, pose.ErrNoPerson) {
			fmt.Fprintf(w, "posture: error: %v\n", err)
		} else {
			fmt.Fprintf(w, "posture: %s\n", label)
		}
	}
	if failed == len(sensors) && failed > 0 {
		return errors.New("no sensor could be read")
	}
	return nil
}
