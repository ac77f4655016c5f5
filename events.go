// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package websub

// EventType is the kind of subscription-related event
type EventType uint8

const (
	// Listening indicates that the callback endpoint has been mounted and is serving.
	Listening EventType = iota

	// Subscribed indicates that a hub accepted a subscription and granted a lease.
	Subscribed

	// Unsubscribed indicates that a hub verified the removal of a subscription.
	Unsubscribed

	// Denied indicates that a hub refused a subscription, either synchronously in
	// response to the handshake or later via a denied verification.
	Denied

	// Feed indicates that a content push carried a valid signature and its payload
	// should be consumed.
	Feed

	// Error indicates a failure during callback handling that could not be attributed
	// to a normal protocol outcome.
	Error

	InvalidEventString string = "!!INVALID SUBSCRIPTION EVENT TYPE!!"
)

func (et EventType) String() string {
	switch et {
	case Listening:
		return "Listening"
	case Subscribed:
		return "Subscribed"
	case Unsubscribed:
		return "Unsubscribed"
	case Denied:
		return "Denied"
	case Feed:
		return "Feed"
	case Error:
		return "Error"
	default:
		return InvalidEventString
	}
}

// Event represents a single occurrence of interest in the life cycle of a subscription.
// Instances of Event should be considered immutable by application code.
type Event struct {
	// ID is a unique correlation identifier assigned when the event is dispatched.
	ID string

	// Type describes the kind of this event.  This field is always set.
	Type EventType

	// Hub is the hub URL associated with this event.  Unset for Listening events.
	Hub string

	// Topic is the topic URL associated with this event.  Unset for Listening events.
	Topic string

	// LeaseSeconds is the subscription lease granted by the hub.  This field is only
	// set for Subscribed events.
	LeaseSeconds int

	// Body is the raw payload of a content push, or the hub's response body when a
	// handshake was refused.  Only set for Feed and Denied events.
	//
	// Never assume that it is safe to use this byte slice outside the listener
	// invocation.  Make a copy if it is needed by other goroutines or if it needs
	// to be part of a long-lived data structure.
	Body []byte

	// Err is the error which triggered an Error event.  Unset for all other types.
	Err error
}

// Listener is an event sink.  Listeners should never modify events and should never
// store events for later use.  If data from an event is needed for another goroutine
// or for long-term storage, a copy should be made.
type Listener func(*Event)

// Listeners aggregates multiple listeners into one.  If this method is passed
// zero (0) listeners, an internal default no-op is used instead.
func Listeners(listeners ...Listener) Listener {
	if len(listeners) > 0 {
		return func(e *Event) {
			for _, l := range listeners {
				l(e)
			}
		}
	}

	return func(*Event) {}
}
