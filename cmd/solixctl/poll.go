package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	modbus "github.com/hootrhino/solix-modbus"
	"github.com/hootrhino/solix-modbus/charger"
	"github.com/hootrhino/solix-modbus/charger/bridge"
)

type pollFlags struct {
	interval      time.Duration
	mqttBroker    string
	mqttTopic     string
	mqttClientID  string
	metricsListen string
	allSensors    bool
}

func parsePollFlags(config charger.Config, args []string) (pollFlags, error) {
	fs := flag.NewFlagSet("poll", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var p pollFlags
	fs.DurationVar(&p.interval, "interval", config.Interval(), "poll interval")
	fs.StringVar(&p.mqttBroker, "mqtt-broker", "", "MQTT broker URL, e.g. tcp://127.0.0.1:1883; empty disables MQTT")
	fs.StringVar(&p.mqttTopic, "mqtt-topic", "solix_ev", "MQTT topic prefix")
	fs.StringVar(&p.mqttClientID, "mqtt-client-id", "solixctl", "MQTT client ID")
	fs.StringVar(&p.metricsListen, "metrics-listen", "", "address serving /metrics, e.g. :9502; empty disables it")
	fs.BoolVar(&p.allSensors, "all-sensors", false, "also read and publish the full sensor table each cycle")
	if err := fs.Parse(args); err != nil {
		return p, usageError(err.Error())
	}
	return p, nil
}

func runPoll(ctx context.Context, config charger.Config, logger zerolog.Logger, args []string) error {
	pf, err := parsePollFlags(config, args)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := modbus.NewMetrics(reg)
	if err != nil {
		return err
	}
	exporter, err := bridge.NewExporter(reg)
	if err != nil {
		return err
	}

	client, err := newClient(config, logger, modbus.WithMetrics(metrics))
	if err != nil {
		return err
	}
	ctrl := charger.NewController(client, logger)

	if pf.metricsListen != "" {
		srv := &http.Server{Addr: pf.metricsListen, Handler: metricsMux(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", pf.metricsListen).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
		logger.Info().Str("addr", pf.metricsListen).Msg("serving metrics")
	}

	var publisher *bridge.MQTTPublisher
	if pf.mqttBroker != "" {
		var mqttClient mqtt.Client
		publisher, mqttClient, err = connectMQTT(ctx, pf, ctrl, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := publisher.PublishAvailability(false); err != nil {
				logger.Warn().Err(err).Msg("failed to publish offline state")
			}
			mqttClient.Disconnect(250)
		}()
	}

	poller := charger.NewPoller(client, pf.interval, logger)
	poller.OnData(func(s charger.Snapshot) {
		exporter.Update(s)
		var readings []charger.Reading
		if pf.allSensors {
			var err error
			readings, err = charger.ReadAll(ctx, client)
			if err != nil {
				logger.Warn().Err(err).Msg("sensor table read failed")
			} else {
				exporter.UpdateReadings(readings)
			}
		}
		if publisher == nil {
			return
		}
		if err := publisher.PublishAvailability(true); err != nil {
			logger.Warn().Err(err).Msg("mqtt publish failed")
			return
		}
		if err := publisher.PublishSnapshot(s); err != nil {
			logger.Warn().Err(err).Msg("mqtt publish failed")
		}
		if readings != nil {
			if err := publisher.PublishReadings(readings); err != nil {
				logger.Warn().Err(err).Msg("mqtt publish failed")
			}
		}
	})
	poller.OnError(func(err error) {
		exporter.Failed(err)
		if publisher != nil {
			if perr := publisher.PublishAvailability(false); perr != nil {
				logger.Warn().Err(perr).Msg("mqtt publish failed")
			}
		}
	})

	logger.Info().Dur("interval", poller.Interval()).Msg("polling charger")
	poller.Start(ctx)
	<-ctx.Done()
	poller.Stop()
	return nil
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func connectMQTT(ctx context.Context, pf pollFlags, ctrl *charger.Controller, logger zerolog.Logger) (*bridge.MQTTPublisher, mqtt.Client, error) {
	var publisher *bridge.MQTTPublisher
	opts := bridge.NewClientOptions(pf.mqttBroker, pf.mqttClientID, pf.mqttTopic)
	opts.OnConnect = func(c mqtt.Client) {
		logger.Info().Str("broker", pf.mqttBroker).Msg("MQTT connected")
		sensors := []charger.Sensor{}
		for _, key := range []string{charger.KeyChargingStatus, charger.KeyPower, charger.KeyDuration, charger.KeyEnergy} {
			if s, ok := charger.SensorByKey(key); ok {
				sensors = append(sensors, s)
			}
		}
		if pf.allSensors {
			sensors = charger.Sensors
		}
		if err := publisher.PublishDiscovery(sensors); err != nil {
			logger.Warn().Err(err).Msg("failed to publish discovery configs")
		}
		if err := publisher.Subscribe(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to subscribe command topics")
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	}

	mqttClient := mqtt.NewClient(opts)
	publisher = bridge.NewMQTTPublisher(mqttClient, pf.mqttTopic, ctrl, logger)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, token.Error()
	}
	return publisher, mqttClient, nil
}
