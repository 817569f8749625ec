// Package redisstore provides Redis implementations of the notification
// DeliveryHistory and Locker.
//
// History keeps successful deliveries in a sorted set per
// user/channel/template and prunes entries older than the retention on every
// write, which bounds the throttle guard's look-back. Locker guards per-user
// digest flushes across worker processes; release is a compare-and-delete
// script so an expired holder never frees a lock taken over by another.
package redisstore
