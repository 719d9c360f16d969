package wsmux

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghostkellz/zrpc/rpcmetrics"
)

// streamMap tracks the Streams multiplexed onto a single WebSocket
// connection, and allocates the 2-byte substream IDs carried on the wire:
// odd IDs for the dialing side, even for the accepting side, a shared
// process-wide gauge, and a shutdown latch that rejects new streams while
// existing ones drain.
type streamMap struct {
	mu sync.RWMutex

	streams      map[uint16]*Stream
	nextID       uint16
	ignoreNew    bool
	drained      chan struct{}
	drainedOnce  sync.Once
	activeStreams prometheus.Gauge
}

func newStreamMap(isClient bool) *streamMap {
	m := &streamMap{
		streams:       make(map[uint16]*Stream),
		drained:       make(chan struct{}),
		activeStreams: rpcmetrics.ActiveStreams,
	}
	if isClient {
		m.nextID = 1
	} else {
		m.nextID = 2
	}
	return m
}

func (m *streamMap) acquireLocalID() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID += 2
	return id
}

func (m *streamMap) get(id uint16) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[id]
	return s, ok
}

// set registers a new stream, failing if the ID is taken or the map is
// draining (peer opened a stream after we started closing).
func (m *streamMap) set(s *Stream) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[s.wireID]; ok {
		return false
	}
	if m.ignoreNew {
		return false
	}
	m.streams[s.wireID] = s
	m.activeStreams.Inc()
	return true
}

func (m *streamMap) delete(id uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[id]; ok {
		delete(m.streams, id)
		m.activeStreams.Dec()
	}
	if m.ignoreNew && len(m.streams) == 0 {
		m.drainedOnce.Do(func() { close(m.drained) })
	}
}

func (m *streamMap) shutdown() (done <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ignoreNew {
		return m.drained
	}
	m.ignoreNew = true
	if len(m.streams) == 0 {
		m.drainedOnce.Do(func() { close(m.drained) })
	}
	return m.drained
}

func (m *streamMap) all() []*Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		out = append(out, s)
	}
	return out
}
