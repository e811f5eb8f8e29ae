package notification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhook(t *testing.T, status int, got *[]DiscordMessage) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var msg DiscordMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		*got = append(*got, msg)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscordRoutesByKind(t *testing.T) {
	var errs, oks []DiscordMessage
	errSrv := webhook(t, http.StatusNoContent, &errs)
	okSrv := webhook(t, http.StatusOK, &oks)
	d := NewDiscord(errSrv.URL, okSrv.URL, errSrv.Client())

	require.NoError(t, d.SendSuccess("run 1: 3 computed"))
	require.NoError(t, d.SendWarning("run 2: 1 failed"))
	require.NoError(t, d.SendError("token rejected"))

	require.Len(t, oks, 1)
	assert.Contains(t, oks[0].Embeds[0].Description, "run 1: 3 computed")
	assert.Equal(t, colorGreen, oks[0].Embeds[0].Color)

	require.Len(t, errs, 2)
	assert.Equal(t, colorOrange, errs[0].Embeds[0].Color)
	assert.Contains(t, errs[1].Embeds[0].Description, "token rejected")
	assert.Equal(t, colorRed, errs[1].Embeds[0].Color)
}

func TestDiscordStatusError(t *testing.T) {
	var got []DiscordMessage
	srv := webhook(t, http.StatusTooManyRequests, &got)
	d := NewDiscord(srv.URL, srv.URL, nil)

	err := d.SendSuccess("done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestDiscordWithoutURL(t *testing.T) {
	d := NewDiscord("", "", nil)
	assert.NoError(t, d.SendSuccess("done"))
	assert.NoError(t, d.SendWarning("partial"))
}
