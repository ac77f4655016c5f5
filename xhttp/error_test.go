package xhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	var (
		assert = assert.New(t)

		err = &Error{
			Code:   http.StatusServiceUnavailable,
			Header: http.Header{"X-Test": []string{"value"}},
			Text:   "server busy",
		}
	)

	assert.Equal(http.StatusServiceUnavailable, err.StatusCode())
	assert.Equal(http.Header{"X-Test": []string{"value"}}, err.Headers())
	assert.Equal("server busy", err.Error())

	data, marshalErr := err.MarshalJSON()
	assert.NoError(marshalErr)
	assert.JSONEq(`{"code": 503, "text": "server busy"}`, string(data))
}

func TestWriteErrorf(t *testing.T) {
	var (
		assert   = assert.New(t)
		response = httptest.NewRecorder()
	)

	_, err := WriteErrorf(response, http.StatusNotFound, "no such topic: %s", "https://feed.example/atom")
	assert.NoError(err)
	assert.Equal(http.StatusNotFound, response.Code)
	assert.Equal("application/json", response.Header().Get("Content-Type"))
	assert.JSONEq(
		`{"code": 404, "message": "no such topic: https://feed.example/atom"}`,
		response.Body.String(),
	)
}

func TestWriteError(t *testing.T) {
	var (
		assert   = assert.New(t)
		response = httptest.NewRecorder()
	)

	_, err := WriteError(response, http.StatusBadRequest, "missing parameters")
	assert.NoError(err)
	assert.Equal(http.StatusBadRequest, response.Code)
	assert.Equal("application/json", response.Header().Get("Content-Type"))
	assert.JSONEq(
		`{"code": 400, "message": "missing parameters"}`,
		response.Body.String(),
	)
}
