// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes session statistics and the latest telemetry in
// the Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/solderstat/pkg/session"
	"github.com/Thermoquad/solderstat/pkg/station"
)

const namespace = "solderstat"

// Source is what the collector reads on every scrape
type Source interface {
	Stats() station.Statistics
	State() session.State
}

// Collector is a prometheus.Collector over a session. Counters are read
// from the session statistics at scrape time; zone gauges come from the
// last state passed to Observe.
type Collector struct {
	source Source

	mu   sync.Mutex
	last *station.DeviceState

	lines       *prometheus.Desc
	lineErrors  *prometheus.Desc
	anomalies   *prometheus.Desc
	commands    *prometheus.Desc
	connected   *prometheus.Desc
	temperature *prometheus.Desc
	power       *prometheus.Desc
	zoneOn      *prometheus.Desc
	airFlow     *prometheus.Desc
	vacuum      *prometheus.Desc
	lastSeen    *prometheus.Desc
}

// NewCollector creates a collector reading from source
func NewCollector(source Source) *Collector {
	zone := []string{"zone"}
	return &Collector{
		source:      source,
		lines:       prometheus.NewDesc(namespace+"_lines_total", "Telemetry lines received.", []string{"result"}, nil),
		lineErrors:  prometheus.NewDesc(namespace+"_line_errors_total", "Telemetry lines rejected, by reason.", []string{"reason"}, nil),
		anomalies:   prometheus.NewDesc(namespace+"_anomalies_total", "Implausible telemetry values, by kind.", []string{"kind"}, nil),
		commands:    prometheus.NewDesc(namespace+"_commands_total", "Commands written, by outcome.", []string{"outcome"}, nil),
		connected:   prometheus.NewDesc(namespace+"_connected", "1 while the session is connected.", nil, nil),
		temperature: prometheus.NewDesc(namespace+"_zone_temperature_celsius", "Last reported zone temperature.", zone, nil),
		power:       prometheus.NewDesc(namespace+"_zone_power_percent", "Last reported zone power.", zone, nil),
		zoneOn:      prometheus.NewDesc(namespace+"_zone_on", "1 when the zone heater is on.", zone, nil),
		airFlow:     prometheus.NewDesc(namespace+"_smd_airflow_percent", "Last reported SMD airflow.", nil, nil),
		vacuum:      prometheus.NewDesc(namespace+"_vacuum_on", "1 when the vacuum pump is on.", nil, nil),
		lastSeen:    prometheus.NewDesc(namespace+"_last_telemetry_timestamp_seconds", "Drain time of the last decoded state.", nil, nil),
	}
}

// Observe records the newest decoded state
func (c *Collector) Observe(s station.DeviceState) {
	c.mu.Lock()
	c.last = &s
	c.mu.Unlock()
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.lines, c.lineErrors, c.anomalies, c.commands, c.connected,
		c.temperature, c.power, c.zoneOn, c.airFlow, c.vacuum, c.lastSeen,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	counter := func(d *prometheus.Desc, v uint64, label string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), label)
	}

	counter(c.lines, stats.ValidLines, "valid")
	counter(c.lines, stats.AnomalousValues, "anomalous")
	counter(c.lines, stats.Errors(), "rejected")

	counter(c.lineErrors, stats.FieldCountErrs, "field_count")
	counter(c.lineErrors, stats.FieldParseErrs, "field_parse")
	counter(c.lineErrors, stats.FrameErrors, "frame_too_long")

	counter(c.anomalies, stats.PowerRange, "power")
	counter(c.anomalies, stats.AirFlowRange, "airflow")
	counter(c.anomalies, stats.TemperatureOdd, "temperature")
	counter(c.anomalies, stats.FlagValues, "flag")

	counter(c.commands, stats.CommandsSent, "sent")
	counter(c.commands, stats.CommandsDropped, "dropped")
	counter(c.commands, stats.CommandsFailed, "failed")

	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, flag(c.source.State() == session.Connected))

	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	if last == nil {
		return
	}

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	zones := []struct {
		zone        station.Zone
		temperature float64
		power       float64
		on          bool
	}{
		{station.ZoneSolderingIron, last.SolderingIron.TemperatureC, last.SolderingIron.Power, last.SolderingIron.On},
		{station.ZoneSMDRework, last.SMDRework.TemperatureC, last.SMDRework.Power, last.SMDRework.On},
		{station.ZoneLCDRepair, last.LCDRepair.TemperatureC, last.LCDRepair.Power, last.LCDRepair.On},
	}
	for _, z := range zones {
		gauge(c.temperature, z.temperature, string(z.zone))
		gauge(c.power, z.power, string(z.zone))
		gauge(c.zoneOn, flag(z.on), string(z.zone))
	}
	gauge(c.airFlow, last.SMDRework.AirFlow)
	gauge(c.vacuum, flag(last.VacuumPumpOn))
	if !last.ReceivedAt.IsZero() {
		gauge(c.lastSeen, float64(last.ReceivedAt.UnixNano())/1e9)
	}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewRegistry returns a registry holding only c
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return reg
}

// Handler serves /metrics for reg and a /health probe
func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Serve listens on addr until ctx is done
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
