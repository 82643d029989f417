// Package metrics exports auth outcomes in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/go-otp-auth/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts operation outcomes by error kind and deliveries by method.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	deliveries *prometheus.CounterVec
}

func New(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Auth operations by name and outcome kind.",
		}, []string{"op", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "OTP notices handed to a delivery channel, by method.",
		}, []string{"method"}),
	}
	r.registry.MustRegister(
		r.operations,
		r.deliveries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Operation records one finished operation; a nil err counts as "ok".
func (r *Recorder) Operation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.KindOf(err)
	}
	r.operations.WithLabelValues(op, outcome).Inc()
}

func (r *Recorder) Delivery(method string) {
	r.deliveries.WithLabelValues(method).Inc()
}

// Handler serves the registry for scraping.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
