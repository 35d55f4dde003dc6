package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hootrhino/solix-modbus/charger"
)

// Broker is the part of an MQTT client the publisher uses. mqtt.Client
// satisfies it.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	discoveryPrefix = "homeassistant"
	publishTimeout  = 5 * time.Second
)

// Command payloads accepted on <prefix>/command/set.
const (
	CommandStart = "start"
	CommandStop  = "stop"
	CommandBoost = "boost"
)

// NewClientOptions returns paho options for the bridge: the availability
// topic doubles as the last will, and subscriptions survive reconnects.
func NewClientOptions(broker, clientID, prefix string) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetKeepAlive(30*time.Second).
		SetPingTimeout(5*time.Second).
		SetWill(prefix+"/status", payloadOffline, 0, true).
		SetAutoReconnect(true).
		SetResumeSubs(true).
		SetOrderMatters(false)
}

// HassAutoconfig is a Home Assistant MQTT discovery payload.
type HassAutoconfig struct {
	DeviceClass       string               `json:"dev_cla,omitempty"`
	UnitOfMeasurement string               `json:"unit_of_meas,omitempty"`
	Name              string               `json:"name"`
	StatusTopic       string               `json:"stat_t,omitempty"`
	CommandTopic      string               `json:"cmd_t,omitempty"`
	AvailabilityTopic string               `json:"avty_t"`
	UniqueID          string               `json:"uniq_id"`
	StateClass        string               `json:"stat_cla,omitempty"`
	PayloadPress      string               `json:"pl_prs,omitempty"`
	Device            HassAutoconfigDevice `json:"dev"`

	// For number
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`

	// For select
	Ops []string `json:"ops,omitempty"`
}

type HassAutoconfigDevice struct {
	IDs          string `json:"ids"`
	Name         string `json:"name"`
	Manufacturer string `json:"mf,omitempty"`
	Model        string `json:"mdl,omitempty"`
}

func intPtr(value int) *int {
	return &value
}

// MQTTPublisher mirrors charger snapshots to MQTT and forwards command topics
// to a Controller.
type MQTTPublisher struct {
	broker     Broker
	prefix     string
	nodeID     string
	controller *charger.Controller
	logger     zerolog.Logger
}

// NewMQTTPublisher creates a publisher for topics under prefix. controller may
// be nil, in which case Subscribe is a no-op.
func NewMQTTPublisher(broker Broker, prefix string, controller *charger.Controller, logger zerolog.Logger) *MQTTPublisher {
	prefix = strings.TrimSuffix(prefix, "/")
	return &MQTTPublisher{
		broker:     broker,
		prefix:     prefix,
		nodeID:     strings.NewReplacer("/", "_", " ", "_").Replace(prefix),
		controller: controller,
		logger:     logger,
	}
}

// Topic returns the full topic of a key.
func (p *MQTTPublisher) Topic(key string) string {
	return p.prefix + "/" + key
}

func (p *MQTTPublisher) publish(topic string, retained bool, payload interface{}) error {
	token := p.broker.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish to %s timed out", topic)
	}
	return errors.Wrapf(token.Error(), "publish to %s", topic)
}

// PublishAvailability publishes online or offline to <prefix>/status.
func (p *MQTTPublisher) PublishAvailability(online bool) error {
	state := payloadOffline
	if online {
		state = payloadOnline
	}
	return p.publish(p.Topic("status"), true, state)
}

// PublishReadings publishes each reading retained under <prefix>/<key>.
func (p *MQTTPublisher) PublishReadings(readings []charger.Reading) error {
	for _, r := range readings {
		if err := p.publish(p.Topic(r.Key), true, r.State); err != nil {
			return err
		}
	}
	return nil
}

// PublishSnapshot publishes the values of a poll cycle.
func (p *MQTTPublisher) PublishSnapshot(s charger.Snapshot) error {
	return p.PublishReadings(s.Readings())
}

func (p *MQTTPublisher) autoconfig(name, key string) HassAutoconfig {
	return HassAutoconfig{
		Name:              name,
		AvailabilityTopic: p.Topic("status"),
		UniqueID:          fmt.Sprint(p.nodeID, ".", key),
		Device: HassAutoconfigDevice{
			IDs:          p.nodeID,
			Name:         "Anker SOLIX EV Charger",
			Manufacturer: "Anker",
			Model:        "SOLIX V1",
		},
	}
}

func (p *MQTTPublisher) discoveryTopic(component, key string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryPrefix, component, p.nodeID, key)
}

// DiscoveryConfigs returns the Home Assistant discovery payloads keyed by
// their config topic.
func (p *MQTTPublisher) DiscoveryConfigs(sensors []charger.Sensor) map[string]HassAutoconfig {
	configs := make(map[string]HassAutoconfig, len(sensors)+5)
	for _, s := range sensors {
		autoconf := p.autoconfig(s.Name, s.Key)
		autoconf.StatusTopic = p.Topic(s.Key)
		autoconf.UnitOfMeasurement = s.Unit
		component := "sensor"
		switch {
		case s.Binary:
			component = "binary_sensor"
		case s.States != nil:
			autoconf.DeviceClass = "enum"
			autoconf.Ops = s.States.Options()
		default:
			autoconf.DeviceClass = s.DeviceClass
			autoconf.StateClass = "measurement"
			if s.DeviceClass == "energy" {
				autoconf.StateClass = "total_increasing"
			}
		}
		configs[p.discoveryTopic(component, s.Key)] = autoconf
	}

	if p.controller == nil {
		return configs
	}

	maxCurrent := p.autoconfig("Max Current", "max_current")
	maxCurrent.CommandTopic = p.Topic("max_current/set")
	maxCurrent.UnitOfMeasurement = "A"
	maxCurrent.Min = intPtr(0)
	maxCurrent.Max = intPtr(charger.MaxCurrentAmps)
	configs[p.discoveryTopic("number", "max_current")] = maxCurrent

	phase := p.autoconfig("Phase Setting", "phase_setting")
	phase.CommandTopic = p.Topic("phase/set")
	phase.Ops = charger.PhaseMap.Options()
	configs[p.discoveryTopic("select", "phase_setting")] = phase

	for _, b := range []struct{ name, key, payload string }{
		{"Start Charging", "start", CommandStart},
		{"Stop Charging", "stop", CommandStop},
		{"Boost", "boost", CommandBoost},
	} {
		button := p.autoconfig(b.name, b.key)
		button.CommandTopic = p.Topic("command/set")
		button.PayloadPress = b.payload
		configs[p.discoveryTopic("button", b.key)] = button
	}
	return configs
}

// PublishDiscovery pushes the Home Assistant discovery configs, retained.
func (p *MQTTPublisher) PublishDiscovery(sensors []charger.Sensor) error {
	for topic, autoconf := range p.DiscoveryConfigs(sensors) {
		jsonBytes, err := json.Marshal(&autoconf)
		if err != nil {
			return errors.Wrapf(err, "encode discovery config %s", topic)
		}
		if err := p.publish(topic, true, string(jsonBytes)); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers the command topic handlers.
func (p *MQTTPublisher) Subscribe(ctx context.Context) error {
	if p.controller == nil {
		return nil
	}
	for _, topic := range []string{p.Topic("max_current/set"), p.Topic("phase/set"), p.Topic("command/set")} {
		token := p.broker.Subscribe(topic, 0, func(_ mqtt.Client, message mqtt.Message) {
			defer message.Ack()
			if err := p.HandleCommand(ctx, message.Topic(), string(message.Payload())); err != nil {
				p.logger.Error().Err(err).Str("topic", message.Topic()).Msg("command failed")
			}
		})
		if !token.WaitTimeout(publishTimeout) {
			return errors.Errorf("subscribe to %s timed out", topic)
		}
		if err := token.Error(); err != nil {
			return errors.Wrapf(err, "subscribe to %s", topic)
		}
	}
	return nil
}

// HandleCommand applies the payload of a command topic.
func (p *MQTTPublisher) HandleCommand(ctx context.Context, topic, payload string) error {
	if p.controller == nil {
		return errors.New("no controller configured")
	}
	text := strings.TrimSpace(payload)
	switch topic {
	case p.Topic("max_current/set"):
		// Home Assistant number entities may send "16.0".
		value, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsInf(value, 0) || value != math.Trunc(value) {
			return errors.Wrapf(charger.ErrInvalidArgument, "invalid max current %q, expected whole amperes", text)
		}
		return p.controller.SetMaxCurrent(ctx, int(value))
	case p.Topic("phase/set"):
		phase, err := charger.ParsePhase(text)
		if err != nil {
			return err
		}
		return p.controller.SetPhase(ctx, phase)
	case p.Topic("command/set"):
		switch strings.ToLower(text) {
		case CommandStart:
			return p.controller.StartCharging(ctx)
		case CommandStop:
			return p.controller.StopCharging(ctx)
		case CommandBoost:
			return p.controller.Boost(ctx)
		default:
			return errors.Wrapf(charger.ErrInvalidArgument, "unknown command %q", text)
		}
	default:
		return errors.Errorf("unexpected topic %s", topic)
	}
}
