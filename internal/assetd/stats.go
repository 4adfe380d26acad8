package assetd

import (
	"math"
	"net/http"
	"sync/atomic"
)

// statsCollector counts responses by outcome and tracks body sizes of the
// 200s.
type statsCollector struct {
	served      atomic.Uint64
	notModified atomic.Uint64
	notFound    atomic.Uint64

	servedBytes atomic.Uint64
	minBytes    atomic.Uint64
	maxBytes    atomic.Uint64
}

func newStatsCollector() *statsCollector {
	s := &statsCollector{}
	s.minBytes.Store(math.MaxUint64)
	return s
}

func (s *statsCollector) ObserveStatus(status int) {
	switch status {
	case http.StatusNotModified:
		s.notModified.Add(1)
	case http.StatusNotFound:
		s.notFound.Add(1)
	}
}

func (s *statsCollector) Observe(bodyBytes int) {
	if bodyBytes < 0 {
		bodyBytes = 0
	}
	n := uint64(bodyBytes)

	s.served.Add(1)
	s.servedBytes.Add(n)

	for {
		cur := s.minBytes.Load()
		if n >= cur || s.minBytes.CompareAndSwap(cur, n) {
			break
		}
	}
	for {
		cur := s.maxBytes.Load()
		if n <= cur || s.maxBytes.CompareAndSwap(cur, n) {
			break
		}
	}
}

type statsSnapshot struct {
	Served      uint64
	NotModified uint64
	NotFound    uint64
	ServedBytes uint64
	MinBytes    uint64
	MaxBytes    uint64
	AvgBytes    uint64
}

func (s *statsCollector) Snapshot() statsSnapshot {
	out := statsSnapshot{
		Served:      s.served.Load(),
		NotModified: s.notModified.Load(),
		NotFound:    s.notFound.Load(),
		ServedBytes: s.servedBytes.Load(),
		MaxBytes:    s.maxBytes.Load(),
	}
	if out.Served == 0 {
		return out
	}
	if minv := s.minBytes.Load(); minv != math.MaxUint64 {
		out.MinBytes = minv
	}
	out.AvgBytes = out.ServedBytes / out.Served
	return out
}
