package tailing

import (
	"sync"

	"go.uber.org/zap"

	"CsvLogPump/internal/metrics"
)

// maxQueuedFaults: сколько ошибок держим, если их никто не читает; старые отбрасываются.
const maxQueuedFaults = 10000

// faultHub: единая точка упорядочивания ошибок. Источники кладут их в очередь под мьютексом
// и не блокируются, одна горутина отдаёт их читателю по одной в порядке поступления.
type faultHub struct {
	logger *zap.Logger
	out    chan error
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	queue   []error
	closed  bool
	dropped int
}

func newFaultHub(logger *zap.Logger) *faultHub {
	h := &faultHub{
		logger: logger,
		out:    make(chan error),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.dispatch()
	return h
}

func (h *faultHub) publish(err error) {
	if err == nil {
		return
	}
	metrics.FaultsTotal.WithLabelValues(faultKind(err)).Inc()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if len(h.queue) >= maxQueuedFaults {
		h.queue = h.queue[1:]
		h.dropped++
	}
	h.queue = append(h.queue, err)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *faultHub) dispatch() {
	defer close(h.done)
	defer close(h.out)
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			dropped := h.dropped
			h.dropped = 0
			h.mu.Unlock()
			if dropped > 0 {
				h.logger.Warn("Ошибки никто не читает, часть отброшена", zap.Int("dropped", dropped))
			}
			select {
			case <-h.wake:
				continue
			case <-h.stop:
				return
			}
		}
		next := h.queue[0]
		h.queue[0] = nil
		h.queue = h.queue[1:]
		h.mu.Unlock()

		select {
		case h.out <- next:
		case <-h.stop:
			return
		}
	}
}

func (h *faultHub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	close(h.stop)
	<-h.done
}
