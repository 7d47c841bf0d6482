package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatcher delivers messages from a bounded queue with a fixed set of
// workers. Enqueue never blocks; a full queue drops the message.
type Dispatcher struct {
	mailer      Mailer
	queue       chan Message
	workers     int
	sendTimeout time.Duration
	logger      *slog.Logger
	sent        *prometheus.CounterVec

	startOnce sync.Once
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
}

// DispatcherConfig sizes the dispatcher.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// NewDispatcher creates a dispatcher. reg may be nil.
func NewDispatcher(mailer Mailer, cfg DispatcherConfig, logger *slog.Logger, reg prometheus.Registerer) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		mailer:      mailer,
		queue:       make(chan Message, cfg.QueueSize),
		workers:     cfg.Workers,
		sendTimeout: cfg.SendTimeout,
		logger:      logger,
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_total",
			Help: "Outbound emails by result (sent, failed, dropped).",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(d.sent)
	}
	return d
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
		d.logger.Info("email dispatcher started",
			slog.Int("workers", d.workers),
			slog.Int("queue_size", cap(d.queue)),
			slog.String("mailer", d.mailer.Name()),
		)
	})
}

// Enqueue queues msg and reports whether it was accepted.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, msg, "dispatcher closed")
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		d.drop(ctx, msg, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(ctx context.Context, msg Message, why string) {
	d.sent.WithLabelValues("dropped").Inc()
	d.logger.WarnContext(ctx, "email dropped",
		slog.String("reason", why),
		slog.String("to", msg.To),
		slog.String("category", msg.Category),
	)
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		err := d.mailer.Send(ctx, msg)
		cancel()
		if err != nil {
			d.sent.WithLabelValues("failed").Inc()
			d.logger.Error("failed to send email",
				slog.String("to", msg.To),
				slog.String("category", msg.Category),
				slog.String("error", err.Error()),
			)
			continue
		}
		d.sent.WithLabelValues("sent").Inc()
	}
}

// Close stops accepting messages and waits for the queue to drain or ctx to
// expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
