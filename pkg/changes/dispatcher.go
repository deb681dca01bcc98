// Package changes delivers committed row changes to an observer channel.
package changes

import (
	"log/slog"
	"sync"

	"github.com/pario-ai/sqlactor/pkg/models"
)

// Dispatcher forwards events to a target channel on its own goroutine, so
// a slow observer never stalls the connection that produced them. Events
// are delivered in the order they were published.
type Dispatcher struct {
	target chan<- models.ChangeEvent
	logger *slog.Logger

	mu    sync.Mutex
	queue []models.ChangeEvent

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts a dispatcher sending to target. A nil logger discards output.
func New(target chan<- models.ChangeEvent, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{
		target: target,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Publish queues events for delivery. It never blocks on the observer.
func (d *Dispatcher) Publish(events []models.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, events...)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close stops delivery and waits for the dispatcher goroutine to exit.
// Events not yet delivered are dropped. The target channel is not closed.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.wake:
		case <-d.done:
			d.dropPending(0)
			return
		}

		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for i, ev := range batch {
			select {
			case d.target <- ev:
			case <-d.done:
				d.dropPending(len(batch) - i)
				return
			}
		}
	}
}

func (d *Dispatcher) dropPending(inFlight int) {
	d.mu.Lock()
	n := inFlight + len(d.queue)
	d.queue = nil
	d.mu.Unlock()
	if n > 0 {
		d.logger.Debug("change events dropped on close", "count", n)
	}
}
