package hostadapter

import (
	"context"
	"log"
	"time"

	"eventgate/internal/manifest"
	"eventgate/internal/queuebackend"
	"eventgate/internal/queuedispatch"
)

// QueuePoller repeatedly drains one queue's backend and hands the batch to
// a Dispatcher, following the teacher's watchdog.go ticker-loop shape:
// poll, act, sleep, repeat until ctx is cancelled.
type QueuePoller struct {
	Queue      *manifest.QueueDescriptor
	Backend    queuebackend.Backend
	Dispatcher *queuedispatch.Dispatcher
	BatchSize  int
	Interval   time.Duration
}

// Run blocks until ctx is cancelled, polling at p.Interval.
func (p *QueuePoller) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("hostadapter: queue poller for %s stopping", p.Queue.Name)
			return
		case <-ticker.C:
			p.pollOnce(ctx, batchSize)
		}
	}
}

func (p *QueuePoller) pollOnce(ctx context.Context, batchSize int) {
	batch, err := p.Backend.Receive(ctx, p.Queue.Name, p.Queue.FIFO, batchSize)
	if err != nil {
		log.Printf("hostadapter: receiving from %s: %v", p.Queue.Name, err)
		return
	}
	if len(batch) == 0 {
		return
	}

	var outcomes []queuedispatch.MessageOutcome
	if p.Queue.FIFO {
		outcomes = p.Dispatcher.DispatchFIFO(ctx, batch)
	} else {
		outcomes = p.Dispatcher.DispatchStandard(ctx, batch)
	}

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			continue
		}
		if err := p.Backend.Delete(ctx, p.Queue.Name, p.Queue.FIFO, outcome.MessageID); err != nil {
			log.Printf("hostadapter: deleting %s/%s: %v", p.Queue.Name, outcome.MessageID, err)
		}
	}
}
