package xmetrics

import (
	"errors"
	"fmt"

	"github.com/go-kit/kit/metrics"
	gokitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider is a Prometheus-specific metrics provider.  Use this interface
// when interacting directly with Prometheus.
type PrometheusProvider interface {
	NewCounterVec(string) *prometheus.CounterVec
	NewGaugeVec(string) *prometheus.GaugeVec
}

// Registry is the core abstraction for this package.  It is a Prometheus registry and a
// go-kit style provider all in one.
//
// For any metric that is already defined the registry returns a new go-kit wrapper for that
// metric.  Additionally, new ad hoc metrics are cached and returned by subsequent calls.
type Registry interface {
	PrometheusProvider
	prometheus.Gatherer
	prometheus.Registerer

	// NewCounter returns a go-kit Counter for the given metric name, defining the
	// metric ad hoc if it was not preregistered.
	NewCounter(string) metrics.Counter

	// NewGauge returns a go-kit Gauge for the given metric name, defining the
	// metric ad hoc if it was not preregistered.
	NewGauge(string) metrics.Gauge
}

// registry is the internal Registry implementation
type registry struct {
	*prometheus.Registry

	namespace string
	subsystem string
	cache     map[string]prometheus.Collector
}

func (r *registry) NewCounterVec(name string) *prometheus.CounterVec {
	var counterVec *prometheus.CounterVec

	if existing, ok := r.cache[name]; ok {
		if counterVec, ok = existing.(*prometheus.CounterVec); !ok {
			panic(fmt.Errorf("The metric %s is not a counter", name))
		}
	} else {
		counterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Subsystem: r.subsystem,
			Name:      name,
			Help:      name,
		}, nil)

		if err := r.Registry.Register(counterVec); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				counterVec = already.ExistingCollector.(*prometheus.CounterVec)
			} else {
				panic(err)
			}
		}

		r.cache[name] = counterVec
	}

	return counterVec
}

func (r *registry) NewCounter(name string) metrics.Counter {
	return gokitprometheus.NewCounter(r.NewCounterVec(name))
}

func (r *registry) NewGaugeVec(name string) *prometheus.GaugeVec {
	var gaugeVec *prometheus.GaugeVec

	if existing, ok := r.cache[name]; ok {
		if gaugeVec, ok = existing.(*prometheus.GaugeVec); !ok {
			panic(fmt.Errorf("The metric %s is not a gauge", name))
		}
	} else {
		gaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: r.namespace,
			Subsystem: r.subsystem,
			Name:      name,
			Help:      name,
		}, nil)

		if err := r.Registry.Register(gaugeVec); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				gaugeVec = already.ExistingCollector.(*prometheus.GaugeVec)
			} else {
				panic(err)
			}
		}

		r.cache[name] = gaugeVec
	}

	return gaugeVec
}

func (r *registry) NewGauge(name string) metrics.Gauge {
	return gokitprometheus.NewGauge(r.NewGaugeVec(name))
}

// NewRegistry creates a Registry from an Options and zero or more metrics modules.
// The module metrics are preregistered along with any metrics in the options, and
// duplicates across all sources are rejected.
func NewRegistry(o *Options, modules ...Module) (Registry, error) {
	r := &registry{
		Registry:  o.registry(),
		namespace: o.namespace(),
		subsystem: o.subsystem(),
		cache:     make(map[string]prometheus.Collector),
	}

	preregistered := append([]Metric{}, o.Module()...)
	for _, m := range modules {
		preregistered = append(preregistered, m()...)
	}

	for _, m := range preregistered {
		if len(m.Name) == 0 {
			return nil, errors.New("Metric names cannot be empty")
		}

		if _, ok := r.cache[m.Name]; ok {
			return nil, fmt.Errorf("Duplicate metric: %s", m.Name)
		}

		if len(m.Namespace) == 0 {
			m.Namespace = r.namespace
		}

		if len(m.Subsystem) == 0 {
			m.Subsystem = r.subsystem
		}

		c, err := NewCollector(m)
		if err != nil {
			return nil, err
		}

		if err := r.Registry.Register(c); err != nil {
			return nil, fmt.Errorf("Error while preregistering metric %s: %s", m.Name, err)
		}

		r.cache[m.Name] = c
	}

	return r, nil
}

// MustRegistry is a panic-on-error variant of NewRegistry, useful in tests and
// in main functions where a metrics failure should halt startup.
func MustRegistry(o *Options, modules ...Module) Registry {
	r, err := NewRegistry(o, modules...)
	if err != nil {
		panic(err)
	}

	return r
}
