package device

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tss-ch/mas004-databridge/internal/protocol"
)

// ZBCClient speaks the ZBC binary-framed protocol used by the label
// printer (TT* parameters). Transaction ids are 16-bit, monotonic with
// wraparound, and serialized by a mutex since the device only tolerates
// one in-flight transaction.
type ZBCClient struct {
	host    string
	port    string
	timeout time.Duration

	mu  sync.Mutex
	trx uint16
}

// NewZBCClient builds a client for a ZBC device reachable at host:port.
func NewZBCClient(host, port string, timeout time.Duration) *ZBCClient {
	return &ZBCClient{host: host, port: port, timeout: timeout}
}

func (c *ZBCClient) nextTrx() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trx++
	return c.trx
}

// Transact opens a fresh connection, sends a message with the given id and
// body, acks any response that carries a payload, and returns the decoded
// response message id and body.
func (c *ZBCClient) Transact(messageID uint16, body []byte) (uint16, []byte, error) {
	if c.host == "" || c.port == "" {
		return 0, nil, fmt.Errorf("zbc device endpoint missing")
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(c.host, c.port), c.timeout)
	if err != nil {
		return 0, nil, fmt.Errorf("dial zbc device: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	trx := c.nextTrx()
	msg := protocol.BuildZBCMessage(messageID, body)
	forceCS := true
	pkt := protocol.BuildZBCPacket(protocol.ZBCFlagSQS|protocol.ZBCFlagFIN, trx, 0, msg, &forceCS)
	if _, err := conn.Write(pkt); err != nil {
		return 0, nil, fmt.Errorf("write zbc packet: %w", err)
	}

	reader := bufio.NewReader(conn)

	first, err := readZBCPacket(reader)
	if err != nil {
		return 0, nil, fmt.Errorf("read zbc response: %w", err)
	}
	if first.Flags&protocol.ZBCFlagNAK != 0 {
		return 0, nil, fmt.Errorf("zbc transport NAK")
	}

	response := first
	if first.Flags&protocol.ZBCFlagACK != 0 && len(first.Payload) == 0 {
		response, err = readZBCPacket(reader)
		if err != nil {
			return 0, nil, fmt.Errorf("read zbc payload response: %w", err)
		}
		if response.Flags&protocol.ZBCFlagNAK != 0 {
			return 0, nil, fmt.Errorf("zbc payload NAK")
		}
	}

	if len(response.Payload) > 0 {
		ack := protocol.BuildZBCAck(response.Flags, response.TransactionID, response.SequenceID)
		if _, err := conn.Write(ack); err != nil {
			return 0, nil, fmt.Errorf("write zbc ack: %w", err)
		}
	}

	return protocol.ParseZBCMessage(response.Payload)
}

// readZBCPacket scans for the 0xA5 start byte, reads the fixed 9-byte
// header tail, derives the total frame length from the size field, and
// reads and validates the remainder.
func readZBCPacket(r *bufio.Reader) (protocol.ZBCPacket, error) {
	var start byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return protocol.ZBCPacket{}, err
		}
		if b == protocol.ZBCStart {
			start = b
			break
		}
	}

	rest := make([]byte, 9)
	if _, err := readFull(r, rest); err != nil {
		return protocol.ZBCPacket{}, err
	}

	size := binary.LittleEndian.Uint16(rest[1:3])
	if int(size) < 10 {
		return protocol.ZBCPacket{}, fmt.Errorf("zbc packet size invalid: %d", size)
	}
	remaining := int(size) - 10
	tail := make([]byte, remaining)
	if remaining > 0 {
		if _, err := readFull(r, tail); err != nil {
			return protocol.ZBCPacket{}, err
		}
	}

	full := make([]byte, 0, size)
	full = append(full, start)
	full = append(full, rest...)
	full = append(full, tail...)
	return protocol.ParseZBCPacket(full)
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
