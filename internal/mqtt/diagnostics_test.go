package mqtt

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerAddressParsing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		broker   string
		host     string
		hostPort string
		isIP     bool
	}{
		{"tcp://broker.local:1883", "broker.local", "broker.local:1883", false},
		{"tcp://192.168.1.10", "192.168.1.10", "192.168.1.10:1883", true},
		{"mqtt://10.0.0.1:8883", "10.0.0.1", "10.0.0.1:8883", true},
		{"tcp://[::1]:1883", "::1", "[::1]:1883", true},
		{"[fe80::1]", "fe80::1", "[fe80::1]:1883", true},
		{"broker", "broker", "broker:1883", false},
	}
	for _, tt := range tests {
		t.Run(tt.broker, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.host, extractHost(tt.broker))
			assert.Equal(t, tt.hostPort, extractHostPort(tt.broker))
			assert.Equal(t, tt.isIP, isIPAddress(extractHost(tt.broker)))
		})
	}

	assert.False(t, isIPAddress("ws://127.0.0.1"))
	assert.Equal(t, "soundbackend/test", constructTestTopic(""))
	assert.Equal(t, "voice/test", constructTestTopic("voice/"))
}

func collect(ctx context.Context, cfg Config, c Client) []TestResult {
	results := make(chan TestResult, 16)
	TestConnection(ctx, cfg, c, results)
	close(results)
	var out []TestResult
	for r := range results {
		out = append(out, r)
	}
	return out
}

func TestConnectionStages(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	cfg := DefaultConfig()
	cfg.Broker = "tcp://" + ln.Addr().String()
	cfg.Topic = "phone"
	client := newFakeClient()
	client.connected = false

	results := collect(context.Background(), cfg, client)
	// IP broker: no DNS stage, progress and result for three stages
	require.Len(t, results, 6)
	assert.Equal(t, TCPConnection.String(), results[0].Stage)
	assert.Equal(t, "running", results[0].State)
	for i := 1; i < len(results); i += 2 {
		assert.True(t, results[i].Success, results[i].Stage)
		assert.Equal(t, "completed", results[i].State)
	}
	msg, ok := client.last("phone/test")
	require.True(t, ok)
	assert.JSONEq(t, `{"test":true}`, msg.payload)
}

func TestConnectionStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := DefaultConfig()
	cfg.Broker = "tcp://" + addr
	results := collect(context.Background(), cfg, newFakeClient())
	require.Len(t, results, 2)
	assert.False(t, results[1].Success)
	assert.Equal(t, "failed", results[1].State)
	assert.NotEmpty(t, results[1].Error)

	client := newFakeClient()
	client.connected = false
	client.connectErr = fmt.Errorf("not authorized")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results = collect(ctx, cfg, client)
	require.Len(t, results, 1)
	assert.Equal(t, "timeout", results[0].State)
}
