/*
Package events provides an in-memory event broker for appmgr's daemon-wide
notifications.

It implements a lightweight, topic-agnostic pub/sub bus: publishers send
Events onto a buffered channel, a single broadcast loop fans each one out to
every subscriber's own buffered channel, and slow subscribers drop events
rather than block the broker. There is no persistence or replay — a
subscriber that wasn't listening when an event was published never sees it.

The reconciler's health loop uses this as the "external sink" for critical
health check failures (EventHealthCheckCritical): appmgr itself does not
assume any particular downstream consumer exists, matching the way the
feature has no fixed downstream consumer.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go func() {
		for ev := range sub {
			...
		}
	}()

	broker.Publish(&events.Event{Type: events.EventHealthCheckCritical, PackageId: "bitcoind"})
*/
package events
