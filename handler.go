// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package websub

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/schema"
	"github.com/spf13/cast"
	"github.com/xmidt-org/websub/logging"
	"github.com/xmidt-org/websub/xhttp"
)

// verification models the query parameters of a hub's verification GET.  The
// wire names of the hub.* parameters contain dots, which a schema decoder
// treats as nested field paths, so they are read straight off the query.
type verification struct {
	Hub          string
	Topic        string
	Mode         string
	Challenge    string
	LeaseSeconds string
}

// pushQuery models the correlation parameters threaded onto the callback URL
// during the handshake.
type pushQuery struct {
	Hub   string `schema:"hub"`
	Topic string `schema:"topic"`
}

// CallbackHandler is the single entry point for the publicly reachable callback
// endpoint.  GET requests are hub verification challenges, POST requests are
// content pushes, and no other verbs are recognized.
//
// Events produced by callback handling are dispatched only after the HTTP
// response has been written, so a slow or failing listener cannot block the
// protocol exchange.  Panics during handling are converted into Error events
// rather than propagated to the server.
type CallbackHandler struct {
	subscriber *Subscriber
	decoder    *schema.Decoder
	logger     log.Logger
}

// Handler produces the callback CallbackHandler for this Subscriber.
func (s *Subscriber) Handler() *CallbackHandler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &CallbackHandler{
		subscriber: s,
		decoder:    decoder,
		logger:     s.logger,
	}
}

func (h *CallbackHandler) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Log(level.Key(), level.ErrorValue(), logging.MessageKey(), "callback handling panicked", "panic", r)
			xhttp.WriteErrorf(response, http.StatusInternalServerError, "internal error")
			h.subscriber.dispatch(&Event{
				Type: Error,
				Err:  fmt.Errorf("callback handling panicked: %v", r),
			})
		}
	}()

	switch request.Method {
	case http.MethodGet:
		h.serveVerification(response, request)

	case http.MethodPost:
		h.servePush(response, request)

	default:
		response.Header().Set("Allow", "GET, POST")
		xhttp.WriteErrorf(response, http.StatusMethodNotAllowed, "method %s is not allowed", request.Method)
	}
}

// serveVerification finalizes a pending subscribe/unsubscribe/denied transition.
// The challenge must be echoed back verbatim: the hub trusts a 2xx response whose
// body matches as confirmation.
func (h *CallbackHandler) serveVerification(response http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	v := verification{
		Hub:          query.Get("hub"),
		Topic:        query.Get("hub.topic"),
		Mode:         query.Get("hub.mode"),
		Challenge:    query.Get("hub.challenge"),
		LeaseSeconds: query.Get("hub.lease_seconds"),
	}

	if len(v.Hub) == 0 || len(v.Topic) == 0 || len(v.Mode) == 0 || len(v.Challenge) == 0 {
		h.rejectVerification(response, http.StatusBadRequest, "missing required hub parameters")
		return
	}

	var leaseSeconds int
	if v.Mode == ModeSubscribe {
		var err error
		if leaseSeconds, err = cast.ToIntE(v.LeaseSeconds); err != nil {
			// strict: a subscribe verification without a parseable lease is rejected
			// before the pending entry is consumed, leaving it available for a retry
			h.rejectVerification(response, http.StatusBadRequest, "lease not specified")
			return
		}
	}

	switch v.Mode {
	case ModeSubscribe, ModeUnsubscribe, ModeDenied:
	default:
		h.rejectVerification(response, http.StatusForbidden, fmt.Sprintf("unrecognized mode: %s", v.Mode))
		return
	}

	// at-most-once: the first verification for a topic consumes the pending entry,
	// and replayed or forged verifications see a 404
	if !h.subscriber.consumePending(v.Topic) {
		h.rejectVerification(response, http.StatusNotFound, fmt.Sprintf("no pending subscription for topic %s", v.Topic))
		return
	}

	event := &Event{
		Hub:   v.Hub,
		Topic: v.Topic,
	}

	switch v.Mode {
	case ModeDenied:
		event.Type = Denied

	case ModeSubscribe:
		h.subscriber.markActive(v.Topic)
		event.Type = Subscribed
		event.LeaseSeconds = leaseSeconds

	case ModeUnsubscribe:
		h.subscriber.removeActive(v.Topic)
		event.Type = Unsubscribed
	}

	h.subscriber.measures.VerificationsAccepted.Add(1.0)
	h.logger.Log(level.Key(), level.InfoValue(), logging.MessageKey(), "verification accepted",
		"mode", v.Mode, "hub", v.Hub, "topic", v.Topic)

	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(response, v.Challenge)

	h.subscriber.dispatch(event)
}

// servePush authenticates a content push against the per-topic key.  A signature
// that fails to verify is absorbed with a 202 so the hub is free to retry; only
// requests that are structurally defective get a hard error status.
func (h *CallbackHandler) servePush(response http.ResponseWriter, request *http.Request) {
	var q pushQuery
	if err := h.decoder.Decode(&q, request.URL.Query()); err != nil {
		xhttp.WriteError(response, http.StatusBadRequest, err)
		return
	}

	if len(q.Hub) == 0 || len(q.Topic) == 0 {
		xhttp.WriteErrorf(response, http.StatusBadRequest, "missing hub or topic")
		return
	}

	// the signature covers the exact bytes received, so the body is read in full
	// before any HMAC computation
	body, err := io.ReadAll(request.Body)
	if err != nil || len(body) == 0 {
		xhttp.WriteErrorf(response, http.StatusBadRequest, "missing request body")
		return
	}

	header := request.Header.Get(SignatureHeader)
	if len(header) == 0 {
		xhttp.WriteErrorf(response, http.StatusForbidden, "missing %s header", SignatureHeader)
		return
	}

	newHash, given, err := parseSignature(header)
	if err != nil {
		h.subscriber.measures.PushesRejected.Add(1.0)
		xhttp.WriteError(response, http.StatusForbidden, err)
		return
	}

	if !verifyDigest(newHash, topicKey(h.subscriber.secret, q.Topic), body, given) {
		h.subscriber.measures.PushesRejected.Add(1.0)
		h.logger.Log(level.Key(), level.WarnValue(), logging.MessageKey(), "push signature mismatch",
			"hub", q.Hub, "topic", q.Topic)

		// per WebSub, a failed signature is not revealed as a hard error
		response.WriteHeader(http.StatusAccepted)
		return
	}

	h.subscriber.measures.PushesAccepted.Add(1.0)
	response.WriteHeader(http.StatusNoContent)

	h.subscriber.dispatch(&Event{
		Type:  Feed,
		Hub:   q.Hub,
		Topic: q.Topic,
		Body:  body,
	})
}

func (h *CallbackHandler) rejectVerification(response http.ResponseWriter, code int, value interface{}) {
	h.subscriber.measures.VerificationsRejected.Add(1.0)
	xhttp.WriteError(response, code, value)
}
