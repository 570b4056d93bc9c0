// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/solderstat/pkg/session"
	"github.com/Thermoquad/solderstat/pkg/station"
)

type fakeSource struct {
	stats station.Statistics
	state session.State
}

func (f *fakeSource) Stats() station.Statistics { return f.stats }
func (f *fakeSource) State() session.State      { return f.state }

func TestCollector_CountersFromStats(t *testing.T) {
	src := &fakeSource{state: session.Connected}
	src.stats.ValidLines = 7
	src.stats.FieldParseErrs = 2
	src.stats.CommandsSent = 3

	c := NewCollector(src)
	expected := `
# HELP solderstat_lines_total Telemetry lines received.
# TYPE solderstat_lines_total counter
solderstat_lines_total{result="anomalous"} 0
solderstat_lines_total{result="rejected"} 2
solderstat_lines_total{result="valid"} 7
# HELP solderstat_connected 1 while the session is connected.
# TYPE solderstat_connected gauge
solderstat_connected 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"solderstat_lines_total", "solderstat_connected"))
}

func TestCollector_ZoneGaugesAfterObserve(t *testing.T) {
	c := NewCollector(&fakeSource{})
	before := testutil.CollectAndCount(c)

	state, err := station.Decode("320,45,250,0,0,60,120,15,1")
	require.NoError(t, err)
	state.ReceivedAt = time.Unix(1700000000, 0)
	c.Observe(state)

	// 3 zones x 3 gauges, airflow, vacuum, timestamp
	assert.Equal(t, before+12, testutil.CollectAndCount(c))

	expected := `
# HELP solderstat_zone_temperature_celsius Last reported zone temperature.
# TYPE solderstat_zone_temperature_celsius gauge
solderstat_zone_temperature_celsius{zone="LCD"} 120
solderstat_zone_temperature_celsius{zone="SI"} 320
solderstat_zone_temperature_celsius{zone="SMD"} 250
# HELP solderstat_vacuum_on 1 when the vacuum pump is on.
# TYPE solderstat_vacuum_on gauge
solderstat_vacuum_on 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"solderstat_zone_temperature_celsius", "solderstat_vacuum_on"))
}

func TestHandler_ServesMetricsAndHealth(t *testing.T) {
	reg := NewRegistry(NewCollector(&fakeSource{}))
	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "solderstat_connected 0")

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
