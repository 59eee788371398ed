//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/powermux/core/engine"
	"github.com/kilianp07/powermux/core/model"
	"github.com/kilianp07/powermux/core/scheduler"
	"github.com/kilianp07/powermux/core/state"
	"github.com/kilianp07/powermux/internal/eventbus"
)

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\npersistence false\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("container start: %v", err)
	}
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return cont, fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestCommandToSwitchOrderWithBroker(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cont, broker := startMosquitto(ctx, t)
	defer func() { _ = cont.Terminate(context.Background()) }()

	cli, err := NewClient(Config{Broker: broker, QoS: map[string]byte{"command": 1, "switch": 1}})
	require.NoError(t, err)
	defer cli.Disconnect()
	src, err := NewCommandSource(cli)
	require.NoError(t, err)

	bus := eventbus.NewTyped[engine.Event]()
	eng := engine.New(state.New(0), nil, engine.WithEventSink(bus))
	NewSwitchBridge(cli).Start(ctx, bus)

	orders := make(chan SwitchOrder, 16)
	hw := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("hw-sim"))
	if tok := hw.Connect(); tok.Wait() && tok.Error() != nil {
		t.Skipf("broker not ready: %v", tok.Error())
	}
	defer hw.Disconnect(100)
	hw.Subscribe("powermux/switch/+/set", 1, func(_ paho.Client, m paho.Message) {
		var o SwitchOrder
		if json.Unmarshal(m.Payload(), &o) == nil {
			orders <- o
		}
	}).Wait()

	sched := scheduler.New(scheduler.SchedulerConfig{RebalanceIntervalSeconds: 60, PollIntervalSeconds: 0.05, TickMillis: 10}, eng, scheduler.WithSource(src))
	go sched.Run(ctx)

	payload, _ := json.Marshal(CommandMessage{Action: string(model.ActionStart), EVMaxVoltage: 400, EVMaxCurrent: 120})
	hw.Publish("powermux/connector/Connector1/command", 1, false, payload).Wait()

	select {
	case o := <-orders:
		require.Equal(t, uint16(201), o.SwitchID)
		require.True(t, o.On)
	case <-time.After(10 * time.Second):
		t.Fatalf("no switch order received")
	}
}
