package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/powermux/core/command"
	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/infra/logger"
)

// CommandMessage is the payload accepted on <prefix>/connector/<name>/command.
type CommandMessage struct {
	CommandID    string  `json:"command_id"`
	Action       string  `json:"action"`
	EVMaxVoltage float64 `json:"EVMaxVoltage"`
	EVMaxCurrent float64 `json:"EVMaxCurrent"`
}

// AckMessage is published on <prefix>/connector/<name>/ack once a command
// has been applied.
type AckMessage struct {
	CommandID string `json:"command_id"`
	Connector string `json:"connector"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// CommandSource receives connector commands over MQTT. Like the trigger
// file it keeps only the latest command per connector.
type CommandSource struct {
	client *Client
	queue  *command.MemorySource
	log    logger.Logger
}

// NewCommandSource subscribes to the command topic of every connector.
func NewCommandSource(client *Client) (*CommandSource, error) {
	s := &CommandSource{client: client, queue: command.NewMemorySource(), log: logger.New("mqtt_commands")}
	topic := client.Config().Topic("connector", "+", "command")
	if err := client.Subscribe(topic, "command", s.onMessage); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return s, nil
}

func (s *CommandSource) onMessage(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Topic(), msg.Payload())
	if err != nil {
		s.log.Warnf("drop command on %s: %v", msg.Topic(), err)
		return
	}
	if _, err := s.queue.Submit(cmd); err != nil {
		s.log.Warnf("drop command on %s: %v", msg.Topic(), err)
	}
}

// ParseCommand decodes a command message; the connector comes from the
// topic level before "command".
func ParseCommand(topic string, payload []byte) (model.Command, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "command" {
		return model.Command{}, fmt.Errorf("unexpected topic %q", topic)
	}
	c, ok := model.ParseConnector(parts[len(parts)-2])
	if !ok {
		return model.Command{}, fmt.Errorf("unknown connector %q", parts[len(parts)-2])
	}
	var m CommandMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return model.Command{}, fmt.Errorf("decode: %w", err)
	}
	action, err := model.ParseAction(m.Action)
	if err != nil {
		return model.Command{}, err
	}
	return model.Command{
		ID:            m.CommandID,
		Connector:     c,
		Action:        action,
		TargetVoltage: m.EVMaxVoltage,
		TargetCurrent: m.EVMaxCurrent,
	}, nil
}

// Poll returns the pending commands.
func (s *CommandSource) Poll(ctx context.Context) ([]model.Command, error) {
	return s.queue.Poll(ctx)
}

// Consume marks cmds applied and acknowledges each of them.
func (s *CommandSource) Consume(ctx context.Context, cmds []model.Command) error {
	if err := s.queue.Consume(ctx, cmds); err != nil {
		return err
	}
	for _, c := range cmds {
		ack, err := json.Marshal(AckMessage{
			CommandID: c.ID,
			Connector: c.Connector.String(),
			Action:    string(c.Action),
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			return err
		}
		topic := s.client.Config().Topic("connector", c.Connector.String(), "ack")
		if err := s.client.Publish(topic, "ack", false, ack); err != nil {
			s.log.Errorf("ack %s: %v", c.ID, err)
		}
	}
	return nil
}

// SendCommand publishes cmd on the command topic of its connector.
func SendCommand(client *Client, cmd model.Command) error {
	if !cmd.Connector.Valid() {
		return fmt.Errorf("invalid connector %d", cmd.Connector)
	}
	payload, err := json.Marshal(CommandMessage{
		CommandID:    cmd.ID,
		Action:       string(cmd.Action),
		EVMaxVoltage: cmd.TargetVoltage,
		EVMaxCurrent: cmd.TargetCurrent,
	})
	if err != nil {
		return err
	}
	return client.Publish(client.Config().Topic("connector", cmd.Connector.String(), "command"), "command", false, payload)
}
