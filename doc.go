// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

/*
Package websub implements the subscriber half of the WebSub (formerly
PubSubHubbub) protocol: discovering the hub for a topic, issuing the
form-encoded subscribe/unsubscribe handshake, and serving the inbound
callback endpoint that handles hub verification challenges and
HMAC-signed content pushes.

A Subscriber owns the pending and active topic sets and emits typed
Events to registered listeners as subscriptions move through their
life cycle.  Subscriptions are not persisted and handshakes are not
retried; a hub that never verifies leaves its topic pending.
*/
package websub
