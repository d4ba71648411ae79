package device

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/tss-ch/mas004-databridge/internal/protocol"
)

const ultimateMaxResponse = 64 * 1024

// UltimateClient speaks the semicolon-delimited ASCII protocol used by the
// laser (LS* parameters).
type UltimateClient struct {
	host    string
	port    string
	timeout time.Duration
}

// NewUltimateClient builds a client for an Ultimate device at host:port.
func NewUltimateClient(host, port string, timeout time.Duration) *UltimateClient {
	return &UltimateClient{host: host, port: port, timeout: timeout}
}

// Command opens a fresh connection, sends command;args...;\r\n, and parses
// the ACK/NAK response.
func (c *UltimateClient) Command(command string, args ...string) (protocol.UltimateResult, error) {
	if c.host == "" || c.port == "" {
		return protocol.UltimateResult{}, fmt.Errorf("ultimate device endpoint missing")
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(c.host, c.port), c.timeout)
	if err != nil {
		return protocol.UltimateResult{}, fmt.Errorf("dial ultimate device: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	payload := protocol.BuildUltimateCommand(command, args...)
	if _, err := conn.Write(payload); err != nil {
		return protocol.UltimateResult{}, fmt.Errorf("write ultimate command: %w", err)
	}

	reader := bufio.NewReaderSize(conn, ultimateMaxResponse)
	raw, err := reader.ReadBytes('\n')
	if err != nil && len(raw) == 0 {
		return protocol.UltimateResult{}, fmt.Errorf("read ultimate response: %w", err)
	}
	return protocol.ParseUltimateResult(raw)
}
