package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMux(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(NewMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ping")
	assert.NoError(err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal("OK", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	assert.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
}

func TestRunServerDisabled(t *testing.T) {
	assert.NoError(t, RunServer(context.Background(), ""))
}
