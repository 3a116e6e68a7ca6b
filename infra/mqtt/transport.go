package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/battswap/boothd/core/model"
	"github.com/battswap/boothd/infra/logger"
)

// PahoTransport sends slot commands over MQTT. Each command is published
// exactly once: confirmation and retry policy live above the transport.
type PahoTransport struct {
	cli pahoClient
	qos byte
	log logger.Logger
}

// NewPahoTransport connects to the broker described by cfg.
func NewPahoTransport(cfg Config) (*PahoTransport, error) {
	log := logger.New("mqtt_transport")
	cli, err := connect(cfg, log)
	if err != nil {
		return nil, err
	}
	qos := byte(1)
	if q, ok := cfg.QoS["command"]; ok {
		qos = q
	}
	return &PahoTransport{cli: cli, qos: qos, log: log}, nil
}

type commandMessage struct {
	CommandID string         `json:"command_id"`
	Name      string         `json:"name"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// SendCommand publishes the command to the slot command topic.
func (t *PahoTransport) SendCommand(ctx context.Context, ref model.SlotRef, cmd model.Command) error {
	payload, err := json.Marshal(commandMessage{
		CommandID: cmd.ID,
		Name:      string(cmd.Name),
		Params:    cmd.Params,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("booth/%s/slot/%s/command", ref.BoothID, ref.SlotID)
	token := t.cli.Publish(topic, t.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.log.Infof("sent %s %s to %s", cmd.Name, cmd.ID, topic)
	return nil
}

// Close gracefully disconnects from the broker.
func (t *PahoTransport) Close() {
	if t.cli != nil && t.cli.IsConnected() {
		t.cli.Disconnect(250)
	}
}
