// Package broker fans committed count snapshots out to live dashboard
// subscribers. The collaborator contract is "full current snapshot on every
// change": subscribers never have to merge deltas, and a subscriber that
// drops its subscription simply stops receiving.
package broker

import (
	"sync"

	"tally-service/internal/domain"
	"tally-service/internal/metrics"

	log "github.com/sirupsen/logrus"
)

const subscriberBuffer = 8

type subscriber struct {
	templeID string
	ch       chan domain.Snapshot
}

// Broker is an in-process publish/subscribe hub keyed by temple.
type Broker struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func New() *Broker {
	return &Broker{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers for snapshots of one temple. The returned cancel
// function drops the subscription and closes the channel; it is safe to call
// more than once.
func (b *Broker) Subscribe(templeID string) (<-chan domain.Snapshot, func()) {
	sub := &subscriber{
		templeID: templeID,
		ch:       make(chan domain.Snapshot, subscriberBuffer),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers a snapshot to every subscriber of the temple. Writers are
// never blocked: a subscriber whose buffer is full misses this update and
// catches up on the next one, since every message carries the full state.
func (b *Broker) Publish(snapshot domain.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		if sub.templeID != snapshot.TempleID {
			continue
		}
		select {
		case sub.ch <- snapshot:
		default:
			metrics.LiveUpdatesDropped.Inc()
			log.WithField("temple_id", snapshot.TempleID).Debug("Dropped live update for slow subscriber")
		}
	}
}

// SubscriberCount reports the number of active subscriptions for a temple.
func (b *Broker) SubscriberCount(templeID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for sub := range b.subs {
		if sub.templeID == templeID {
			n++
		}
	}
	return n
}
