// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package websub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/segmentio/ksuid"
	"github.com/xmidt-org/websub/logging"
	"github.com/xmidt-org/websub/xhttp"
	"github.com/xmidt-org/websub/xmetrics"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	// ModeSubscribe is the hub.mode value for subscription requests and verifications.
	ModeSubscribe = "subscribe"

	// ModeUnsubscribe is the hub.mode value for removal requests and verifications.
	ModeUnsubscribe = "unsubscribe"

	// ModeDenied is the hub.mode value a hub uses to refuse a subscription out of band.
	ModeDenied = "denied"
)

var (
	// ErrNoSecret indicates that a Subscriber was constructed without a shared secret.
	ErrNoSecret = errors.New("a shared secret is required")

	// ErrInvalidCallbackURL indicates that the configured callback URL is missing or not absolute.
	ErrInvalidCallbackURL = errors.New("an absolute callback URL is required")
)

// Options describes the configuration of a Subscriber.
type Options struct {
	// Logger is the go-kit Logger for subscription life-cycle output.  If not supplied,
	// logging.DefaultLogger() is used instead.
	Logger log.Logger

	// Client is used for outbound discovery GETs and handshake POSTs.  If not supplied,
	// http.DefaultClient is used.
	Client xhttp.Client

	// CallbackURL is the publicly reachable base URL of the callback endpoint.  The hub
	// and topic of each subscription are threaded through as query parameters.  Required,
	// and must be absolute.
	CallbackURL string

	// Secret is the process-wide secret from which per-topic signing keys are derived.
	// Required, immutable once set, and should come from a cryptographically secure
	// random source.
	Secret string

	// Registry supplies this package's metrics.  If not supplied, all instruments discard.
	Registry xmetrics.Registry

	// Listeners receive every event dispatched by the Subscriber.  Further listeners
	// can be added with AddListener.
	Listeners []Listener
}

// Subscriber is the core subscriber-side implementation of WebSub.  It issues
// outbound subscribe/unsubscribe handshakes and owns the pending and active
// topic sets consulted by the callback handler.
type Subscriber struct {
	logger      log.Logger
	client      xhttp.Client
	callbackURL string
	secret      string
	measures    SubscriberMetrics

	stateLock sync.Mutex
	pending   map[string]struct{}
	active    map[string]struct{}

	listenerLock sync.RWMutex
	listeners    []Listener
}

// New constructs a Subscriber from a set of options.
func New(o Options) (*Subscriber, error) {
	if len(o.Secret) == 0 {
		return nil, ErrNoSecret
	}

	u, err := url.Parse(o.CallbackURL)
	if err != nil || !u.IsAbs() {
		return nil, ErrInvalidCallbackURL
	}

	s := &Subscriber{
		logger:      o.Logger,
		client:      o.Client,
		callbackURL: o.CallbackURL,
		secret:      o.Secret,
		measures:    discardMetrics(),
		pending:     make(map[string]struct{}),
		active:      make(map[string]struct{}),
		listeners:   append([]Listener{}, o.Listeners...),
	}

	if s.logger == nil {
		s.logger = logging.DefaultLogger()
	}

	if s.client == nil {
		s.client = http.DefaultClient
	}

	if o.Registry != nil {
		s.measures = ApplyMetricsData(o.Registry)
	}

	return s, nil
}

// SubscribeOptions carries the per-call options of Subscribe.
type SubscribeOptions struct {
	// LeaseSeconds is the requested subscription duration.  When positive, it is sent
	// to the hub as hub.lease_seconds.  The hub decides the granted lease either way.
	LeaseSeconds int

	// Force uses the supplied URL verbatim as the topic instead of the canonical
	// rel="self" link found during discovery.
	Force bool
}

// UnsubscribeOptions carries the per-call options of Unsubscribe.
type UnsubscribeOptions struct {
	// Force uses the supplied URL verbatim as the topic instead of the canonical
	// rel="self" link found during discovery.
	Force bool
}

// Subscribe resolves the hub for the given URL, marks the topic pending, and sends
// the subscribe handshake.  A nil return means only that the hub accepted the
// handshake for asynchronous processing; confirmation arrives later through the
// callback endpoint.  A hub that refuses the handshake synchronously produces a
// Denied event, not an error.
func (s *Subscriber) Subscribe(ctx context.Context, topicURL string, o SubscribeOptions) error {
	hub, topic, err := s.Discover(ctx, topicURL)
	if err != nil {
		return err
	}

	if o.Force {
		topic = topicURL
	}

	// pending is marked before the POST: if the hub verifies before the POST's
	// response is read, the callback must already find the topic.
	s.markPending(topic)
	return s.handshake(ctx, ModeSubscribe, hub, topic, o.LeaseSeconds)
}

// Unsubscribe resolves the hub for the given URL and sends the unsubscribe
// handshake.  The topic is marked pending, replacing any stale entry, so that
// the hub's unsubscribe verification can be consumed.  No prior subscription
// state is required to issue the request.
func (s *Subscriber) Unsubscribe(ctx context.Context, topicURL string, o UnsubscribeOptions) error {
	hub, topic, err := s.Discover(ctx, topicURL)
	if err != nil {
		return err
	}

	if o.Force {
		topic = topicURL
	}

	s.markPending(topic)
	return s.handshake(ctx, ModeUnsubscribe, hub, topic, 0)
}

// handshake POSTs the form-encoded subscription request to the hub.  202 and 204
// signal asynchronous acceptance.  Any other status is an out-of-band denial: a
// normal protocol outcome surfaced as a Denied event carrying the response body.
func (s *Subscriber) handshake(ctx context.Context, mode, hub, topic string, leaseSeconds int) error {
	callback, err := s.callback(hub, topic)
	if err != nil {
		return err
	}

	form := url.Values{
		"hub.verify":   {"async"},
		"hub.mode":     {mode},
		"hub.topic":    {topic},
		"hub.secret":   {topicKey(s.secret, topic)},
		"hub.callback": {callback},
	}

	if mode == ModeSubscribe && leaseSeconds > 0 {
		form.Set("hub.lease_seconds", strconv.Itoa(leaseSeconds))
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, hub, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("handshake POST %s failed: %w", hub, err)
	}

	defer response.Body.Close()
	s.measures.HandshakesSent.Add(1.0)

	switch response.StatusCode {
	case http.StatusAccepted, http.StatusNoContent:
		s.logger.Log(level.Key(), level.DebugValue(), logging.MessageKey(), "handshake accepted",
			"mode", mode, "hub", hub, "topic", topic)
		return nil
	}

	body, _ := io.ReadAll(response.Body)
	s.measures.HandshakesRefused.Add(1.0)
	s.logger.Log(level.Key(), level.WarnValue(), logging.MessageKey(), "hub refused handshake",
		"mode", mode, "hub", hub, "topic", topic, "status", response.StatusCode)

	s.dispatch(&Event{
		Type:  Denied,
		Hub:   hub,
		Topic: topic,
		Body:  body,
	})

	return nil
}

// callback builds the hub.callback URL, threading the hub and topic through as
// query parameters so inbound requests can be correlated with their subscription.
func (s *Subscriber) callback(hub, topic string) (string, error) {
	u, err := url.Parse(s.callbackURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("hub", hub)
	q.Set("topic", topic)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AddListener registers another listener for subscription events.
func (s *Subscriber) AddListener(l Listener) {
	if l == nil {
		return
	}

	s.listenerLock.Lock()
	s.listeners = append(s.listeners, l)
	s.listenerLock.Unlock()
}

// NotifyListening dispatches a Listening event.  The owning process should invoke
// this once the callback endpoint is bound and serving.
func (s *Subscriber) NotifyListening() {
	s.dispatch(&Event{Type: Listening})
}

// dispatch delivers an event synchronously to every registered listener, in
// registration order.  Callers must not hold the state lock.
func (s *Subscriber) dispatch(e *Event) {
	e.ID = ksuid.New().String()

	s.listenerLock.RLock()
	listeners := s.listeners
	s.listenerLock.RUnlock()

	for _, l := range listeners {
		l(e)
	}
}

// Topics returns a sorted snapshot of the topics with active subscriptions.
func (s *Subscriber) Topics() []string {
	s.stateLock.Lock()
	topics := maps.Keys(s.active)
	s.stateLock.Unlock()

	slices.Sort(topics)
	return topics
}

// PendingTopics returns a sorted snapshot of the topics awaiting hub verification.
func (s *Subscriber) PendingTopics() []string {
	s.stateLock.Lock()
	topics := maps.Keys(s.pending)
	s.stateLock.Unlock()

	slices.Sort(topics)
	return topics
}

func (s *Subscriber) markPending(topic string) {
	s.stateLock.Lock()
	s.pending[topic] = struct{}{}
	size := len(s.pending)
	s.stateLock.Unlock()

	s.measures.PendingListSize.Set(float64(size))
}

// consumePending atomically tests for and removes a pending entry.  Exactly one
// of any set of concurrent callers for the same topic observes true, which is
// what makes verification at-most-once.
func (s *Subscriber) consumePending(topic string) bool {
	s.stateLock.Lock()
	_, ok := s.pending[topic]
	if ok {
		delete(s.pending, topic)
	}
	size := len(s.pending)
	s.stateLock.Unlock()

	if ok {
		s.measures.PendingListSize.Set(float64(size))
	}

	return ok
}

func (s *Subscriber) markActive(topic string) {
	s.stateLock.Lock()
	s.active[topic] = struct{}{}
	size := len(s.active)
	s.stateLock.Unlock()

	s.measures.ActiveListSize.Set(float64(size))
}

func (s *Subscriber) removeActive(topic string) {
	s.stateLock.Lock()
	delete(s.active, topic)
	size := len(s.active)
	s.stateLock.Unlock()

	s.measures.ActiveListSize.Set(float64(size))
}
