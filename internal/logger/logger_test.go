package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/stretchr/testify/require"
)

func TestNewRequests(t *testing.T) {
	buf := new(bytes.Buffer)
	log := zerolog.New(buf)

	var ctxLogged bool
	handler := NewRequests(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogged = hlog.FromRequest(r).GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	handler.ServeHTTP(w, r)

	require.True(t, ctxLogged)
	require.Equal(t, http.StatusTeapot, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "http request", line["message"])
	require.Equal(t, "/healthcheck", line["url"])
	require.EqualValues(t, http.StatusTeapot, line["status"])
	require.NotEmpty(t, line["req_id"])
}
