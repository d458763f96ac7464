package relay

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestResponseClass(t *testing.T) {
	c := qt.New(t)
	c.Assert(responseClass(101), qt.Equals, "1xx")
	c.Assert(responseClass(200), qt.Equals, "2xx")
	c.Assert(responseClass(204), qt.Equals, "2xx")
	c.Assert(responseClass(301), qt.Equals, "3xx")
	c.Assert(responseClass(404), qt.Equals, "4xx")
	c.Assert(responseClass(500), qt.Equals, "5xx")
}

func TestMetricsCountersIncrement(t *testing.T) {
	c := qt.New(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.connectionsAccepted.Inc()
	m.upgrades.WithLabelValues("relay").Inc()
	m.responses.WithLabelValues("4xx").Inc()

	var out dto.Metric
	c.Assert(m.connectionsAccepted.Write(&out), qt.IsNil)
	c.Assert(out.Counter.GetValue(), qt.Equals, float64(1))
}
