// Package worker pulls jobs off the queue and runs them through the
// routing executor with bounded concurrency.
package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/routeworks/router/internal/metrics"
	"github.com/routeworks/router/internal/model"
)

// Router is the executor port. A returned error means infrastructure
// trouble and the delivery is nacked for redelivery; domain outcomes
// come back as nil.
type Router interface {
	Route(ctx context.Context, job model.RoutingJob) error
}

type Worker struct {
	router      Router
	concurrency int
}

func New(router Router, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{router: router, concurrency: concurrency}
}

// Run consumes deliveries until the channel closes or the context is
// cancelled, then waits for in-flight jobs to finish.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp091.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					w.handle(ctx, d)
				}
			}
		}()
	}
	wg.Wait()
}

func (w *Worker) handle(ctx context.Context, d amqp091.Delivery) {
	start := time.Now()

	var job model.RoutingJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		// A body that does not decode will not decode on redelivery
		// either; ack it out of the queue.
		zlog.Logger.Error().Err(err).Msg("dropping undecodable job")
		metrics.JobsPoisoned.Inc()
		if ackErr := d.Ack(false); ackErr != nil {
			zlog.Logger.Error().Err(ackErr).Msg("ack failed for poisoned job")
		}
		return
	}

	if err := w.router.Route(ctx, job); err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("tenant_id", job.TenantID).
			Str("message_id", job.MessageID).
			Msg("routing failed, requeueing")
		metrics.JobsProcessedFail.Inc()
		if nackErr := d.Nack(false, true); nackErr != nil {
			zlog.Logger.Error().Err(nackErr).Msg("nack failed")
		}
		return
	}

	metrics.JobsProcessedOK.Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())
	if err := d.Ack(false); err != nil {
		zlog.Logger.Error().Err(err).Msg("ack failed")
	}
}
