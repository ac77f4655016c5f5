// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package websub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHub   = "https://hub.example/"
	testTopic = "https://feed.example/atom"
)

// newCallbackFixture produces a subscriber, its callback handler, and a slice
// that accumulates every dispatched event.
func newCallbackFixture(t *testing.T) (*Subscriber, *CallbackHandler, *[]*Event) {
	events := new([]*Event)
	s := newTestSubscriber(t, nil, func(e *Event) { *events = append(*events, e) })
	return s, s.Handler(), events
}

func verificationRequest(mode, challenge, leaseSeconds string) *http.Request {
	query := url.Values{
		"hub":           {testHub},
		"hub.mode":      {mode},
		"hub.topic":     {testTopic},
		"hub.challenge": {challenge},
	}

	if len(leaseSeconds) > 0 {
		query.Set("hub.lease_seconds", leaseSeconds)
	}

	return httptest.NewRequest(http.MethodGet, "/callback?"+query.Encode(), nil)
}

func pushRequest(body, signature string) *http.Request {
	query := url.Values{
		"hub":   {testHub},
		"topic": {testTopic},
	}

	request := httptest.NewRequest(http.MethodPost, "/callback?"+query.Encode(), strings.NewReader(body))
	if len(signature) > 0 {
		request.Header.Set(SignatureHeader, signature)
	}

	return request
}

func pushSignature(topic string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(topicKey(testSecret, topic)))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func testVerifySubscribe(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		s, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	s.markPending(testTopic)
	handler.ServeHTTP(response, verificationRequest(ModeSubscribe, "challenge value", "3600"))

	assert.Equal(http.StatusOK, response.Code)
	assert.Equal("challenge value", response.Body.String())
	assert.Contains(response.Header().Get("Content-Type"), "text/plain")

	assert.Equal([]string{testTopic}, s.Topics())
	assert.Empty(s.PendingTopics())

	require.Len(*events, 1)
	assert.Equal(Subscribed, (*events)[0].Type)
	assert.Equal(testHub, (*events)[0].Hub)
	assert.Equal(testTopic, (*events)[0].Topic)
	assert.Equal(3600, (*events)[0].LeaseSeconds)
}

func testVerifyDottedParameters(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		s, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	// the hub.* parameter names arrive with literal dots in the raw query
	s.markPending("https://feed.example/atom")
	handler.ServeHTTP(response, httptest.NewRequest(
		http.MethodGet,
		"/callback?hub=https%3A%2F%2Fhub.example%2F&hub.topic=https%3A%2F%2Ffeed.example%2Fatom&hub.mode=subscribe&hub.challenge=abc123&hub.lease_seconds=3600",
		nil,
	))

	assert.Equal(http.StatusOK, response.Code)
	assert.Equal("abc123", response.Body.String())
	assert.Equal([]string{"https://feed.example/atom"}, s.Topics())

	require.Len(*events, 1)
	assert.Equal(Subscribed, (*events)[0].Type)
	assert.Equal(3600, (*events)[0].LeaseSeconds)
}

func testVerifyReplay(t *testing.T) {
	var (
		assert = assert.New(t)

		s, handler, events = newCallbackFixture(t)
	)

	s.markPending(testTopic)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, verificationRequest(ModeSubscribe, "challenge value", "3600"))
	assert.Equal(http.StatusOK, first.Code)

	// the pending entry was consumed, so a replay finds nothing
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, verificationRequest(ModeSubscribe, "challenge value", "3600"))
	assert.Equal(http.StatusNotFound, second.Code)

	assert.Len(*events, 1)
}

func testVerifyDenied(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		s, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	s.markPending(testTopic)
	handler.ServeHTTP(response, verificationRequest(ModeDenied, "challenge value", ""))

	assert.Equal(http.StatusOK, response.Code)
	assert.Equal("challenge value", response.Body.String())
	assert.Empty(s.Topics())

	require.Len(*events, 1)
	assert.Equal(Denied, (*events)[0].Type)
	assert.Equal(testTopic, (*events)[0].Topic)
}

func testVerifyUnsubscribe(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		s, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	s.markActive(testTopic)
	s.markPending(testTopic)
	handler.ServeHTTP(response, verificationRequest(ModeUnsubscribe, "challenge value", ""))

	assert.Equal(http.StatusOK, response.Code)
	assert.Equal("challenge value", response.Body.String())
	assert.Empty(s.Topics())
	assert.Empty(s.PendingTopics())

	require.Len(*events, 1)
	assert.Equal(Unsubscribed, (*events)[0].Type)
}

func testVerifyMissingParameters(t *testing.T) {
	var (
		assert = assert.New(t)

		_, handler, events = newCallbackFixture(t)
	)

	for _, badQuery := range []url.Values{
		{"hub.mode": {ModeSubscribe}, "hub.topic": {testTopic}, "hub.challenge": {"c"}},
		{"hub": {testHub}, "hub.topic": {testTopic}, "hub.challenge": {"c"}},
		{"hub": {testHub}, "hub.mode": {ModeSubscribe}, "hub.challenge": {"c"}},
		{"hub": {testHub}, "hub.mode": {ModeSubscribe}, "hub.topic": {testTopic}},
	} {
		response := httptest.NewRecorder()
		handler.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/callback?"+badQuery.Encode(), nil))
		assert.Equal(http.StatusBadRequest, response.Code, badQuery.Encode())
	}

	assert.Empty(*events)
}

func testVerifyMissingLease(t *testing.T) {
	var (
		assert = assert.New(t)

		s, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	s.markPending(testTopic)
	handler.ServeHTTP(response, verificationRequest(ModeSubscribe, "challenge value", ""))

	assert.Equal(http.StatusBadRequest, response.Code)

	// the pending entry survives a rejected verification
	assert.Equal([]string{testTopic}, s.PendingTopics())
	assert.Empty(*events)
}

func testVerifyUnknownMode(t *testing.T) {
	var (
		assert = assert.New(t)

		s, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	s.markPending(testTopic)
	handler.ServeHTTP(response, verificationRequest("bogus", "challenge value", "3600"))

	assert.Equal(http.StatusForbidden, response.Code)
	assert.Equal([]string{testTopic}, s.PendingTopics())
	assert.Empty(*events)
}

func testVerifyUnknownTopic(t *testing.T) {
	var (
		assert = assert.New(t)

		_, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	handler.ServeHTTP(response, verificationRequest(ModeSubscribe, "challenge value", "3600"))
	assert.Equal(http.StatusNotFound, response.Code)
	assert.Empty(*events)
}

func TestServeVerification(t *testing.T) {
	t.Run("Subscribe", testVerifySubscribe)
	t.Run("DottedParameters", testVerifyDottedParameters)
	t.Run("Replay", testVerifyReplay)
	t.Run("Denied", testVerifyDenied)
	t.Run("Unsubscribe", testVerifyUnsubscribe)
	t.Run("MissingParameters", testVerifyMissingParameters)
	t.Run("MissingLease", testVerifyMissingLease)
	t.Run("UnknownMode", testVerifyUnknownMode)
	t.Run("UnknownTopic", testVerifyUnknownTopic)
}

func testPushAccepted(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		_, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	handler.ServeHTTP(response, pushRequest("hello", pushSignature(testTopic, []byte("hello"))))
	assert.Equal(http.StatusNoContent, response.Code)

	require.Len(*events, 1)
	assert.Equal(Feed, (*events)[0].Type)
	assert.Equal(testHub, (*events)[0].Hub)
	assert.Equal(testTopic, (*events)[0].Topic)
	assert.Equal([]byte("hello"), (*events)[0].Body)
}

func testPushExtraQuery(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		_, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	// unrecognized parameters, dotted or not, must not disturb the decode
	query := url.Values{
		"hub":      {testHub},
		"topic":    {testTopic},
		"hub.mode": {"publish"},
		"extra":    {"ignored"},
	}

	request := httptest.NewRequest(http.MethodPost, "/callback?"+query.Encode(), strings.NewReader("hello"))
	request.Header.Set(SignatureHeader, pushSignature(testTopic, []byte("hello")))

	handler.ServeHTTP(response, request)
	assert.Equal(http.StatusNoContent, response.Code)
	require.Len(*events, 1)
	assert.Equal(Feed, (*events)[0].Type)
}

func testPushSignatureMismatch(t *testing.T) {
	var (
		assert = assert.New(t)

		_, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	// the signature is for different content, so the push is absorbed
	handler.ServeHTTP(response, pushRequest("tampered", pushSignature(testTopic, []byte("hello"))))
	assert.Equal(http.StatusAccepted, response.Code)
	assert.Empty(*events)
}

func testPushWrongTopicKey(t *testing.T) {
	var (
		assert = assert.New(t)

		_, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	handler.ServeHTTP(response, pushRequest("hello", pushSignature("https://feed.example/other", []byte("hello"))))
	assert.Equal(http.StatusAccepted, response.Code)
	assert.Empty(*events)
}

func testPushMissingSignature(t *testing.T) {
	var (
		assert = assert.New(t)

		_, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	handler.ServeHTTP(response, pushRequest("hello", ""))
	assert.Equal(http.StatusForbidden, response.Code)
	assert.Empty(*events)
}

func testPushMalformedSignature(t *testing.T) {
	var (
		assert = assert.New(t)

		_, handler, events = newCallbackFixture(t)
	)

	for _, bad := range []string{"sha256", "md5=deadbeef", "sha256=nothex"} {
		response := httptest.NewRecorder()
		handler.ServeHTTP(response, pushRequest("hello", bad))
		assert.Equal(http.StatusForbidden, response.Code, bad)
	}

	assert.Empty(*events)
}

func testPushMissingQuery(t *testing.T) {
	var (
		assert = assert.New(t)

		_, handler, events = newCallbackFixture(t)
	)

	for _, badQuery := range []url.Values{
		{},
		{"hub": {testHub}},
		{"topic": {testTopic}},
	} {
		response := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, "/callback?"+badQuery.Encode(), strings.NewReader("hello"))
		handler.ServeHTTP(response, request)
		assert.Equal(http.StatusBadRequest, response.Code, badQuery.Encode())
	}

	assert.Empty(*events)
}

func testPushEmptyBody(t *testing.T) {
	var (
		assert = assert.New(t)

		_, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	handler.ServeHTTP(response, pushRequest("", pushSignature(testTopic, nil)))
	assert.Equal(http.StatusBadRequest, response.Code)
	assert.Empty(*events)
}

func TestServePush(t *testing.T) {
	t.Run("Accepted", testPushAccepted)
	t.Run("ExtraQuery", testPushExtraQuery)
	t.Run("SignatureMismatch", testPushSignatureMismatch)
	t.Run("WrongTopicKey", testPushWrongTopicKey)
	t.Run("MissingSignature", testPushMissingSignature)
	t.Run("MalformedSignature", testPushMalformedSignature)
	t.Run("MissingQuery", testPushMissingQuery)
	t.Run("EmptyBody", testPushEmptyBody)
}

func TestMethodNotAllowed(t *testing.T) {
	var (
		assert = assert.New(t)

		_, handler, _ = newCallbackFixture(t)
		response      = httptest.NewRecorder()
	)

	handler.ServeHTTP(response, httptest.NewRequest(http.MethodPut, "/callback", nil))
	assert.Equal(http.StatusMethodNotAllowed, response.Code)
	assert.Equal("GET, POST", response.Header().Get("Allow"))
}

type panicReader struct{}

func (panicReader) Read([]byte) (int, error) {
	panic("read failure")
}

func TestPanicRecovery(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		_, handler, events = newCallbackFixture(t)
		response           = httptest.NewRecorder()
	)

	query := url.Values{"hub": {testHub}, "topic": {testTopic}}
	request := httptest.NewRequest(http.MethodPost, "/callback?"+query.Encode(), panicReader{})

	assert.NotPanics(func() {
		handler.ServeHTTP(response, request)
	})

	assert.Equal(http.StatusInternalServerError, response.Code)
	require.Len(*events, 1)
	assert.Equal(Error, (*events)[0].Type)
	assert.Error((*events)[0].Err)
}
