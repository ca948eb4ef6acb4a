package progress

import (
	"sync"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
)

const subscriberBuffer = 8

// Broker fans batch job updates out to live subscribers. Delivery is
// last-write-wins: when a subscriber falls behind, older updates are
// discarded in favor of the newest row, which is all the progress contract
// requires. Subscribers see the final terminal row as long as they stay
// subscribed.
type Broker struct {
	mu        sync.RWMutex
	jobSubs   map[string]map[chan *domain.BatchJob]struct{}
	ownerSubs map[string]map[chan *domain.BatchJob]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		jobSubs:   make(map[string]map[chan *domain.BatchJob]struct{}),
		ownerSubs: make(map[string]map[chan *domain.BatchJob]struct{}),
	}
}

// Publish delivers the current job row to everyone watching the job or its owner.
func (b *Broker) Publish(job *domain.BatchJob) {
	if job == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.jobSubs[job.ID] {
		send(ch, job)
	}
	for ch := range b.ownerSubs[job.OwnerID] {
		send(ch, job)
	}
}

// SubscribeJob watches a single job. The returned cancel func must be called
// to release the subscription.
func (b *Broker) SubscribeJob(jobID string) (<-chan *domain.BatchJob, func()) {
	ch := make(chan *domain.BatchJob, subscriberBuffer)
	b.mu.Lock()
	subs, ok := b.jobSubs[jobID]
	if !ok {
		subs = make(map[chan *domain.BatchJob]struct{})
		b.jobSubs[jobID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.jobSubs[jobID], ch)
		if len(b.jobSubs[jobID]) == 0 {
			delete(b.jobSubs, jobID)
		}
		b.mu.Unlock()
	}
}

// SubscribeOwner watches every job belonging to one owner.
func (b *Broker) SubscribeOwner(ownerID string) (<-chan *domain.BatchJob, func()) {
	ch := make(chan *domain.BatchJob, subscriberBuffer)
	b.mu.Lock()
	subs, ok := b.ownerSubs[ownerID]
	if !ok {
		subs = make(map[chan *domain.BatchJob]struct{})
		b.ownerSubs[ownerID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.ownerSubs[ownerID], ch)
		if len(b.ownerSubs[ownerID]) == 0 {
			delete(b.ownerSubs, ownerID)
		}
		b.mu.Unlock()
	}
}

// send never blocks a publisher: a full subscriber loses its oldest pending
// update so the newest one always fits.
func send(ch chan *domain.BatchJob, job *domain.BatchJob) {
	for {
		select {
		case ch <- job:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
