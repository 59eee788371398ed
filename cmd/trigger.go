package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/infra/logger"
	"github.com/kilianp07/powermux/infra/mqtt"
	"github.com/kilianp07/powermux/infra/trigger"
)

var triggerOpts struct {
	connector int
	action    string
	voltage   float64
	current   float64
	viaMQTT   bool
	path      string
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Queue a connector command in the trigger file or over MQTT",
	Example: `  powermux trigger --connector 3 --action start --voltage 400 --current 120
  powermux trigger --connector 3 --action stop --mqtt`,
	RunE: runTrigger,
}

func init() {
	f := triggerCmd.Flags()
	f.IntVar(&triggerOpts.connector, "connector", 0, "connector number (1-12)")
	f.StringVar(&triggerOpts.action, "action", "start", "start, stop or update")
	f.Float64Var(&triggerOpts.voltage, "voltage", 0, "requested voltage (V)")
	f.Float64Var(&triggerOpts.current, "current", 0, "requested current (A)")
	f.BoolVar(&triggerOpts.viaMQTT, "mqtt", false, "publish the command over MQTT instead of writing the trigger file")
	f.StringVar(&triggerOpts.path, "file", "", "trigger file, overrides trigger.path")
	_ = triggerCmd.MarkFlagRequired("connector")
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	action, err := model.ParseAction(triggerOpts.action)
	if err != nil {
		return err
	}
	c := model.ConnectorID(triggerOpts.connector)
	if !c.Valid() {
		return fmt.Errorf("invalid connector %d", triggerOpts.connector)
	}
	command := model.Command{
		ID:            uuid.NewString(),
		Connector:     c,
		Action:        action,
		TargetVoltage: triggerOpts.voltage,
		TargetCurrent: triggerOpts.current,
	}

	out := cmd.OutOrStdout()
	if !triggerOpts.viaMQTT {
		path := cfg.Trigger.Path
		if triggerOpts.path != "" {
			path = triggerOpts.path
		}
		if err := trigger.NewFileSource(path, logger.New("trigger")).Submit(command); err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s %s written to %s\n", c, action, path)
		return err
	}

	if !cfg.MQTT.Enabled() {
		return fmt.Errorf("mqtt.broker is not configured")
	}
	mqttCfg := cfg.MQTT
	// keep the service status topic untouched
	mqttCfg.ClientID = ""
	mqttCfg.LWTTopic = mqttCfg.Topic("cli", "status")
	mqttCfg.LWTPayload = "offline"
	mqttCfg.LWTRetain = false
	client, err := mqtt.NewClient(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()
	if err := mqtt.SendCommand(client, command); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s %s published (%s)\n", c, action, command.ID)
	return err
}
