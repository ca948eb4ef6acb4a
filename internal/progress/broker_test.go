package progress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
)

func TestBrokerDeliversToJobAndOwnerSubscribers(t *testing.T) {
	b := NewBroker()
	jobCh, cancelJob := b.SubscribeJob("job-1")
	defer cancelJob()
	ownerCh, cancelOwner := b.SubscribeOwner("user-1")
	defer cancelOwner()

	job := &domain.BatchJob{ID: "job-1", OwnerID: "user-1", Status: domain.BatchStatusProcessing}
	b.Publish(job)

	require.Equal(t, job, <-jobCh)
	require.Equal(t, job, <-ownerCh)
}

func TestBrokerSkipsUnrelatedSubscribers(t *testing.T) {
	b := NewBroker()
	otherCh, cancel := b.SubscribeJob("job-2")
	defer cancel()

	b.Publish(&domain.BatchJob{ID: "job-1", OwnerID: "user-1"})
	require.Empty(t, otherCh)
}

func TestBrokerDropsOldestWhenSubscriberLagging(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.SubscribeJob("job-1")
	defer cancel()

	// Flood well past the buffer without draining.
	for i := 0; i < subscriberBuffer*4; i++ {
		b.Publish(&domain.BatchJob{ID: "job-1", OwnerID: "user-1", CompletedCount: i})
	}
	final := &domain.BatchJob{ID: "job-1", OwnerID: "user-1", Status: domain.BatchStatusCompleted}
	b.Publish(final)

	var last *domain.BatchJob
	for {
		select {
		case j := <-ch:
			last = j
			continue
		default:
		}
		break
	}
	require.NotNil(t, last)
	require.Equal(t, domain.BatchStatusCompleted, last.Status)
}

func TestBrokerCancelStopsDelivery(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.SubscribeJob("job-1")
	cancel()

	b.Publish(&domain.BatchJob{ID: "job-1", OwnerID: "user-1"})
	require.Empty(t, ch)
}
