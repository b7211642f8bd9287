package uds

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), DefaultSocketName)
	srv := NewServer(socketPath)
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, NewClient(socketPath)
}

func TestServerClient_RoundTrip(t *testing.T) {
	srv, client := startServer(t)

	srv.Handle("ping", func(req *Request) *Response {
		return SuccessResponse(map[string]string{"status": "ok"})
	})
	require.NoError(t, srv.Start())

	resp, err := client.SendCommand("ping", nil)
	require.NoError(t, err)
	require.True(t, resp.Success)

	var data map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "ok", data["status"])
}

func TestServer_UnknownCommand(t *testing.T) {
	srv, client := startServer(t)
	require.NoError(t, srv.Start())

	resp, err := client.SendCommand("bogus", nil)
	require.NoError(t, err)
	require.False(t, resp.Success)
	assert.Equal(t, ErrCodeUnknownCommand, resp.Error.Code)
}

func TestServer_ProtocolMismatch(t *testing.T) {
	srv, client := startServer(t)
	require.NoError(t, srv.Start())

	resp, err := client.Send(&Request{ProtocolVersion: 99, Command: "ping"})
	require.NoError(t, err)
	require.False(t, resp.Success)
	assert.Equal(t, ErrCodeProtocolMismatch, resp.Error.Code)
}

func TestServer_HandlerParams(t *testing.T) {
	srv, client := startServer(t)

	type echoParams struct {
		Value string `json:"value"`
	}
	srv.Handle("echo", func(req *Request) *Response {
		var p echoParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return ErrorResponse(ErrCodeValidation, err.Error())
		}
		return SuccessResponse(p)
	})
	require.NoError(t, srv.Start())

	resp, err := client.SendCommand("echo", echoParams{Value: "hello"})
	require.NoError(t, err)
	require.True(t, resp.Success)

	var p echoParams
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.Equal(t, "hello", p.Value)
}

func TestClient_NoServer(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), DefaultSocketName))
	_, err := client.SendCommand("ping", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Is a runner active?")
}
