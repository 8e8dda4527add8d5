package trace

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// CounterType names one of the eight per-server statistics counters, in the
// fixed order the STATISTICS message type replies with them.
type CounterType int

const (
	FilesCreated CounterType = iota
	FilesDeleted
	FilesStated
	SyncCount
	BytesRead
	BytesWritten
	BytesReceived
	BytesSent

	counterCount
)

var counterNames = [counterCount]string{
	"files_created", "files_deleted", "files_stated", "sync_count",
	"bytes_read", "bytes_written", "bytes_received", "bytes_sent",
}

// Statistics holds one server's eight atomic counters, exposed both to the
// STATISTICS wire reply and to Prometheus.
type Statistics struct {
	counters [counterCount]atomic.Uint64
	gauges   [counterCount]prometheus.Gauge
}

// NewStatistics registers the eight gauges under reg, labeled by
// serverLabel (e.g. the server's address), and returns a ready Statistics.
func NewStatistics(reg prometheus.Registerer, serverLabel string) *Statistics {
	s := &Statistics{}
	for i := CounterType(0); i < counterCount; i++ {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "julea",
			Subsystem:   "server",
			Name:        counterNames[i],
			Help:        "JULEA server statistic: " + counterNames[i],
			ConstLabels: prometheus.Labels{"server": serverLabel},
		})
		if reg != nil {
			reg.MustRegister(g)
		}
		s.gauges[i] = g
	}
	return s
}

// Add atomically adds value to the named counter and mirrors it into the
// matching Prometheus gauge.
func (s *Statistics) Add(counter CounterType, value uint64) {
	newVal := s.counters[counter].Add(value)
	if s.gauges[counter] != nil {
		s.gauges[counter].Set(float64(newVal))
	}
}

// Values returns the eight counters in STATISTICS reply order.
func (s *Statistics) Values() [8]uint64 {
	var out [8]uint64
	for i := 0; i < int(counterCount); i++ {
		out[i] = s.counters[i].Load()
	}
	return out
}
