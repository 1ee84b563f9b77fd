package telemetry_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcf-tools/org-mgmt-server/internal/telemetry"
)

// labeledValue reads one labeled sample out of the gathered families.
func labeledValue(t *testing.T, g prometheus.Gatherer, name, label, value string) float64 {
	t.Helper()

	families, err := g.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					if counter := metric.GetCounter(); counter != nil {
						return counter.GetValue()
					}
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}

func TestMetrics_RecordRefresh(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	metrics.RecordRefresh(2*time.Second, true)
	metrics.RecordRefresh(time.Second, true)
	metrics.RecordRefresh(time.Second, false)

	assert.Equal(t, float64(2),
		labeledValue(t, registry, "orgmgmt_refresh_cycles_total", "outcome", telemetry.OutcomeSuccess))
	assert.Equal(t, float64(1),
		labeledValue(t, registry, "orgmgmt_refresh_cycles_total", "outcome", telemetry.OutcomeFailure))
}

func TestMetrics_RecordOrgCount(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	metrics.RecordOrgCount("PCF_NPE", 12)
	metrics.RecordOrgCount("PCF_NPE", 7)

	assert.Equal(t, float64(7),
		labeledValue(t, registry, "orgmgmt_orgs_total", "context", "PCF_NPE"))
}
