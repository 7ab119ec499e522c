package client

import (
	"context"
	"sync"
	"time"
)

// ConnectivityWatcher probes the server's health endpoint on an
// interval and reports reachability transitions.
type ConnectivityWatcher struct {
	transport *Transport
	interval  time.Duration
	onChange  func(online bool)

	mu       sync.Mutex
	online   bool
	started  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewConnectivityWatcher creates a watcher that calls onChange on
// every reachability flip. The initial state is assumed online.
func NewConnectivityWatcher(transport *Transport, interval time.Duration, onChange func(online bool)) *ConnectivityWatcher {
	return &ConnectivityWatcher{
		transport: transport,
		interval:  interval,
		onChange:  onChange,
		online:    true,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins probing in the background.
func (w *ConnectivityWatcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		defer close(w.doneChan)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.probe()
			case <-w.stopChan:
				return
			}
		}
	}()
}

// Stop halts probing and waits for the loop to exit.
func (w *ConnectivityWatcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	<-w.doneChan
}

// Online reports the last observed reachability.
func (w *ConnectivityWatcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Report records an observation made outside the probe loop, such as
// a failed or successful sync request.
func (w *ConnectivityWatcher) Report(online bool) {
	w.set(online)
}

func (w *ConnectivityWatcher) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := w.transport.Health(ctx)
	w.set(err == nil)
}

func (w *ConnectivityWatcher) set(online bool) {
	w.mu.Lock()
	changed := w.online != online
	w.online = online
	w.mu.Unlock()

	if changed && w.onChange != nil {
		w.onChange(online)
	}
}
