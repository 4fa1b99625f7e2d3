package mqtt

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tphakala/soundbackend/internal/logger"
)

// TestResult is the outcome of one connection test stage.
type TestResult struct {
	Success    bool   `json:"success"`
	Stage      string `json:"stage"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
	IsProgress bool   `json:"isProgress,omitempty"`
	State      string `json:"state,omitempty"` // running, completed, failed, timeout
	Timestamp  string `json:"timestamp,omitempty"`
}

// TestStage represents a stage in the connection test.
type TestStage int

const (
	DNSResolution TestStage = iota
	TCPConnection
	MQTTConnection
	MessagePublish
)

func (s TestStage) String() string {
	switch s {
	case DNSResolution:
		return "DNS Resolution"
	case TCPConnection:
		return "TCP Connection"
	case MQTTConnection:
		return "MQTT Connection"
	case MessagePublish:
		return "Message Publishing"
	default:
		return "Unknown Stage"
	}
}

// Timeout constants for the test stages
const (
	dnsTimeout  = 5 * time.Second
	tcpTimeout  = 5 * time.Second
	mqttTimeout = 10 * time.Second
	pubTimeout  = 5 * time.Second
)

// runNetworkTest executes a stage with the context deadline applied.
func runNetworkTest(ctx context.Context, stage TestStage, test func(context.Context) error) TestResult {
	resultChan := make(chan error, 1)
	go func() {
		resultChan <- test(ctx)
	}()

	select {
	case <-ctx.Done():
		return TestResult{
			Stage:   stage.String(),
			Error:   "operation timeout",
			Message: fmt.Sprintf("%s operation timed out", stage),
			State:   "timeout",
		}
	case err := <-resultChan:
		if err != nil {
			return TestResult{
				Stage:   stage.String(),
				Error:   err.Error(),
				Message: fmt.Sprintf("Failed to perform %s", stage),
			}
		}
	}

	return TestResult{
		Success: true,
		Stage:   stage.String(),
		Message: fmt.Sprintf("Successfully completed %s", stage),
	}
}

// TestConnection runs the DNS, TCP, MQTT and publish stages against the
// broker in cfg, streaming progress and results to resultChan. It stops at
// the first failing stage. DNS is skipped for IP brokers.
func TestConnection(ctx context.Context, cfg Config, c Client, resultChan chan<- TestResult) {
	log := GetLogger()

	send := func(result TestResult) {
		switch {
		case result.State != "":
		case result.IsProgress:
			result.State = "running"
		case result.Success:
			result.State = "completed"
		default:
			result.State = "failed"
		}
		result.Timestamp = time.Now().Format(time.RFC3339)

		if result.Success {
			log.Info(result.Message, logger.String("stage", result.Stage))
		} else {
			log.Warn(result.Message, logger.String("stage", result.Stage), logger.String("error", result.Error))
		}

		select {
		case resultChan <- result:
			return
		default:
		}
		select {
		case <-ctx.Done():
		case resultChan <- result:
		}
	}

	if err := ctx.Err(); err != nil {
		send(TestResult{Stage: "Test Setup", Message: "Test cancelled", Error: err.Error(), State: "timeout"})
		return
	}

	runStage := func(stage TestStage, timeout time.Duration, test func(context.Context) error) bool {
		send(TestResult{
			Success:    true,
			Stage:      stage.String(),
			Message:    fmt.Sprintf("Running %s test...", stage),
			IsProgress: true,
		})
		stageCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		result := runNetworkTest(stageCtx, stage, test)
		send(result)
		return result.Success
	}

	host := extractHost(cfg.Broker)
	if !isIPAddress(host) {
		if !runStage(DNSResolution, dnsTimeout, func(ctx context.Context) error {
			_, err := net.DefaultResolver.LookupHost(ctx, host)
			return err
		}) {
			return
		}
	}

	if !runStage(TCPConnection, tcpTimeout, func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", extractHostPort(cfg.Broker))
		if err != nil {
			return err
		}
		return conn.Close()
	}) {
		return
	}

	if !runStage(MQTTConnection, mqttTimeout, func(ctx context.Context) error {
		if c.IsConnected() {
			return nil
		}
		return c.Connect(ctx)
	}) {
		return
	}

	runStage(MessagePublish, pubTimeout, func(ctx context.Context) error {
		return c.Publish(ctx, constructTestTopic(cfg.Topic), `{"test":true}`)
	})
}

// constructTestTopic creates the test topic below the base topic.
func constructTestTopic(baseTopic string) string {
	baseTopic = strings.TrimRight(baseTopic, "/")
	if baseTopic == "" {
		return "soundbackend/test"
	}
	return baseTopic + "/test"
}

// isIPAddress checks if the given host is an IP address
func isIPAddress(host string) bool {
	if scheme, rest, ok := strings.Cut(host, "://"); ok {
		if scheme != "mqtt" && scheme != "tcp" {
			return false
		}
		host = rest
	}

	if strings.HasPrefix(host, "[") {
		end := strings.LastIndex(host, "]")
		if end == -1 {
			return false
		}
		host = host[1:end]
	} else if strings.Count(host, ":") == 1 {
		// IPv4 with port
		host = strings.Split(host, ":")[0]
	}

	return net.ParseIP(host) != nil
}

// extractHost extracts the hostname from broker URL
func extractHost(broker string) string {
	if _, rest, ok := strings.Cut(broker, "://"); ok {
		broker = rest
	}

	if strings.HasPrefix(broker, "[") {
		end := strings.LastIndex(broker, "]")
		if end == -1 {
			return broker
		}
		return broker[1:end]
	}

	if strings.Count(broker, ":") <= 1 {
		if i := strings.LastIndex(broker, ":"); i != -1 {
			return broker[:i]
		}
	}
	return broker
}

// extractHostPort extracts host:port from broker URL, defaulting to 1883.
func extractHostPort(broker string) string {
	if _, rest, ok := strings.Cut(broker, "://"); ok {
		broker = rest
	}

	if strings.HasPrefix(broker, "[") {
		if strings.Contains(broker, "]:") {
			return broker
		}
		if strings.HasSuffix(broker, "]") {
			return broker + ":1883"
		}
		return broker
	}

	// raw IPv6
	if strings.Count(broker, ":") > 1 {
		return "[" + broker + "]:1883"
	}
	if !strings.Contains(broker, ":") {
		return broker + ":1883"
	}
	return broker
}
