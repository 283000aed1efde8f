// Package pubsub fans change events out to in-process subscribers.
//
// Delivery is best-effort and at-most-once. Each subscription owns a bounded
// buffer; Publish never blocks, and an event that does not fit is dropped and
// counted. Subscribers that miss events are expected to re-fetch the sheet,
// not replay history.
//
// Publish calls are serialized, so events for one (date, scope) reach every
// subscriber in publish order. Nothing is ordered across sheets beyond that.
//
// The publisher's only mutable state is its subscriber set.
package pubsub
