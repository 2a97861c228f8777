package trace

import (
	"fmt"
	"sync"
	"time"
)

// Heartbeat periodically emits liveness events. Heartbeats without span ends
// in between point at a stuck collaborator.
type Heartbeat struct {
	tracer   Tracer
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// StartHeartbeat starts emitting heartbeats every interval. It returns nil
// when the tracer is disabled or interval is not positive.
func StartHeartbeat(tracer Tracer, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer:   tracer,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Heartbeat) run() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ticker.C:
			n++
			h.tracer.Emit(&Event{
				Time:   time.Now(),
				Kind:   KindHeartbeat,
				Scope:  ScopeDriver,
				GID:    goroutineID(),
				Name:   "heartbeat",
				Detail: fmt.Sprintf("#%d", n),
			})
		case <-h.stopCh:
			return
		}
	}
}

// Stop ends the heartbeat goroutine and waits for it. Safe on nil.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}
