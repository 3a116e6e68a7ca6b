package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/battswap/boothd/core/model"
	"github.com/battswap/boothd/infra/logger"
)

const stateTopic = "booth/+/slot/+/state"

var (
	snapshotsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boothd_telemetry_snapshots_total",
		Help: "Telemetry snapshots received over MQTT.",
	})
	snapshotsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boothd_telemetry_dropped_total",
		Help: "Telemetry messages dropped because they could not be decoded.",
	})
)

func init() {
	MustRegisterTelemetryMetrics(nil)
}

// MustRegisterTelemetryMetrics registers the subscriber collectors. If reg is
// nil, prometheus.DefaultRegisterer is used.
func MustRegisterTelemetryMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(snapshotsReceived, snapshotsDropped)
}

type stateMessage struct {
	BatteryInserted bool    `json:"battery_inserted"`
	BatteryUID      string  `json:"battery_uid"`
	DoorClosed      bool    `json:"door_closed"`
	DoorLocked      bool    `json:"door_locked"`
	PlugConnected   bool    `json:"plug_connected"`
	RelayOn         bool    `json:"relay_on"`
	SoC             float64 `json:"soc"`
	TemperatureC    float64 `json:"temperature_c"`
	Voltage         float64 `json:"voltage"`
	Cycles          int     `json:"cycles"`
	Timestamp       int64   `json:"timestamp"`
}

// Subscriber consumes slot state topics and forwards decoded snapshots to
// the ingest function. The slot identity is taken from the topic, never from
// the payload.
type Subscriber struct {
	cli    pahoClient
	ingest func(model.TelemetrySnapshot)
	log    logger.Logger
}

// NewSubscriber connects to the broker and subscribes to all slot state
// topics.
func NewSubscriber(cfg Config, ingest func(model.TelemetrySnapshot)) (*Subscriber, error) {
	log := logger.New("mqtt_telemetry")
	cli, err := connect(cfg, log)
	if err != nil {
		return nil, err
	}
	s := &Subscriber{cli: cli, ingest: ingest, log: log}
	qos := byte(0)
	if q, ok := cfg.QoS["state"]; ok {
		qos = q
	}
	if token := cli.Subscribe(stateTopic, qos, s.onMessage); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return nil, token.Error()
	}
	return s, nil
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	ref, ok := refFromTopic(msg.Topic())
	if !ok {
		snapshotsDropped.Inc()
		s.log.Warnf("unexpected topic %s", msg.Topic())
		return
	}
	var m stateMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		snapshotsDropped.Inc()
		s.log.Errorf("failed to decode state for %s: %v", ref, err)
		return
	}
	ts := time.Now()
	if m.Timestamp > 0 {
		ts = time.UnixMilli(m.Timestamp)
	}
	snapshotsReceived.Inc()
	s.ingest(model.TelemetrySnapshot{
		Slot:            ref,
		BatteryInserted: m.BatteryInserted,
		BatteryUID:      m.BatteryUID,
		DoorClosed:      m.DoorClosed,
		DoorLocked:      m.DoorLocked,
		PlugConnected:   m.PlugConnected,
		RelayOn:         m.RelayOn,
		SoC:             m.SoC,
		TemperatureC:    m.TemperatureC,
		Voltage:         m.Voltage,
		Cycles:          m.Cycles,
		Timestamp:       ts,
	})
}

// refFromTopic parses booth/<booth>/slot/<slot>/state.
func refFromTopic(topic string) (model.SlotRef, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "booth" || parts[2] != "slot" || parts[4] != "state" {
		return model.SlotRef{}, false
	}
	return model.SlotRef{BoothID: parts[1], SlotID: parts[3]}, true
}

// Close gracefully disconnects from the broker.
func (s *Subscriber) Close() {
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(250)
	}
}
