package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/powermux/core/metrics"
	"github.com/kilianp07/powermux/infra/logger"
)

// InfluxSink writes cycle reports and switching activity to an InfluxDB
// instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
	site     string
}

// InfluxConfig holds the InfluxDB connection settings.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	Site   string `json:"site"`
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
		site:     cfg.Site,
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) point(measurement string) *write.Point {
	p := write.NewPointWithMeasurement(measurement)
	if s.site != "" {
		p = p.AddTag("site", s.site)
	}
	return p
}

// RecordCycle writes one summary point and one point per active connector.
func (s *InfluxSink) RecordCycle(r coremetrics.CycleReport) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := s.point("rebalance_pass").
		AddTag("kind", r.Kind).
		AddTag("failed", strconv.FormatBool(r.Err != "")).
		AddField("cycle", int64(r.Cycle)).
		AddField("duration_ms", round3(r.Duration.Seconds()*1000)).
		AddField("active_connectors", r.ActiveConnectors).
		AddField("assigned_modules", r.AssignedModules).
		AddField("idle_modules", r.IdleModules).
		AddField("utilisation", round3(r.Utilisation)).
		AddField("mean_satisfaction", round3(r.MeanSatisfaction)).
		AddField("closed_relays", r.ClosedRelays).
		AddField("closed_muxes", r.ClosedMuxes).
		SetTime(r.Time)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return err
	}
	for _, c := range r.Connectors {
		if !c.Active {
			continue
		}
		cp := s.point("connector_allocation").
			AddTag("connector", c.Connector).
			AddTag("sufficient", strconv.FormatBool(c.Sufficient)).
			AddField("requested_a", round3(c.Requested)).
			AddField("assigned_a", round3(c.Assigned)).
			AddField("modules", c.Modules).
			AddField("spare_modules", c.SpareModules).
			SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

// RecordCommand writes an applied or rejected command.
func (s *InfluxSink) RecordCommand(ev coremetrics.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("connector_command").
		AddTag("connector", ev.Connector).
		AddTag("action", ev.Action).
		AddTag("command_id", ev.CommandID).
		AddField("current_a", round3(ev.Current)).
		AddField("accepted", ev.Accepted)
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(ev.Time))
}

// RecordSwitch writes a relay or mux transition.
func (s *InfluxSink) RecordSwitch(ev coremetrics.SwitchEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("switch_transition").
		AddTag("switch_id", strconv.Itoa(int(ev.SwitchID))).
		AddTag("kind", ev.Kind).
		AddField("on", ev.On).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPartialAllocation writes the shortfall of an under-powered connector.
func (s *InfluxSink) RecordPartialAllocation(ev coremetrics.PartialAllocationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("partial_allocation").
		AddTag("connector", ev.Connector).
		AddField("shortfall_a", round3(ev.Shortfall)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
