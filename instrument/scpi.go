package instrument

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/little-did-I-know/SCPI-Instrument-Control/config"
)

// SCPIChannel is a Channel over a raw TCP socket (port 5025 on most scopes).
// Commands are newline-terminated; binary replies use IEEE 488.2
// definite-length blocks.
//
// The channel itself is not safe for concurrent callers. The acquisition
// layer guarantees a single holder at a time, so no locking happens here.
type SCPIChannel struct {
	conn           net.Conn
	rd             *bufio.Reader
	ioTimeout      time.Duration
	maxRecordBytes int
}

// Dial connects to the instrument described by conf.
func Dial(conf config.InstrumentConf) (*SCPIChannel, error) {
	addr := net.JoinHostPort(conf.Address, strconv.Itoa(conf.Port))
	log.Debugf("[instrument] Dialing %s", addr)

	connectTimeout := conf.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, &TransportError{Op: "dial", Cmd: addr, Err: err}
	}

	ioTimeout := conf.IOTimeout
	if ioTimeout <= 0 {
		ioTimeout = 10 * time.Second
	}
	maxRecord := conf.MaxRecordBytes
	if maxRecord <= 0 {
		maxRecord = 64 << 20
	}

	return &SCPIChannel{
		conn:           conn,
		rd:             bufio.NewReaderSize(conn, 1<<16),
		ioTimeout:      ioTimeout,
		maxRecordBytes: maxRecord,
	}, nil
}

func (c *SCPIChannel) write(cmd string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return &TransportError{Op: "deadline", Cmd: cmd, Err: err}
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return &TransportError{Op: "write", Cmd: cmd, Err: err}
	}
	return nil
}

// Send writes cmd and, for queries (commands containing '?'), reads one
// newline-terminated response line.
func (c *SCPIChannel) Send(cmd string) (string, error) {
	log.Debugf("[instrument] >> %s", cmd)
	if err := c.write(cmd); err != nil {
		return "", err
	}
	if !strings.Contains(cmd, "?") {
		return "", nil
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return "", &TransportError{Op: "deadline", Cmd: cmd, Err: err}
	}
	line, err := c.rd.ReadString('\n')
	if err != nil {
		return "", &TransportError{Op: "read", Cmd: cmd, Err: err}
	}
	resp := strings.TrimRight(line, "\r\n")
	log.Debugf("[instrument] << %s", resp)
	return resp, nil
}

// QueryBinary writes cmd and reads an IEEE 488.2 definite-length block,
// returning only the payload bytes. Any textual prefix before the '#' marker
// (some models echo the command name) is discarded.
func (c *SCPIChannel) QueryBinary(cmd string) ([]byte, error) {
	log.Debugf("[instrument] >> %s (binary)", cmd)
	if err := c.write(cmd); err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return nil, &TransportError{Op: "deadline", Cmd: cmd, Err: err}
	}

	// Skip to the block marker.
	for {
		b, err := c.rd.ReadByte()
		if err != nil {
			return nil, &TransportError{Op: "read", Cmd: cmd, Err: err}
		}
		if b == '#' {
			break
		}
	}

	nd, err := c.rd.ReadByte()
	if err != nil {
		return nil, &TransportError{Op: "read", Cmd: cmd, Err: err}
	}
	digits := int(nd - '0')
	if digits < 1 || digits > 9 {
		return nil, ErrMalformedBlock
	}

	lenBuf := make([]byte, digits)
	if _, err := readFull(c.rd, lenBuf); err != nil {
		return nil, &TransportError{Op: "read", Cmd: cmd, Err: err}
	}
	size, err := strconv.Atoi(string(lenBuf))
	if err != nil || size < 0 {
		return nil, ErrMalformedBlock
	}
	if size > c.maxRecordBytes {
		return nil, fmt.Errorf("instrument: block of %d bytes exceeds limit %d", size, c.maxRecordBytes)
	}

	payload := make([]byte, size)
	if _, err := readFull(c.rd, payload); err != nil {
		return nil, &TransportError{Op: "read", Cmd: cmd, Err: err}
	}

	// Trailing newline after the block, if the model sends one.
	if b, err := c.rd.Peek(1); err == nil && (b[0] == '\n' || b[0] == '\r') {
		c.rd.ReadByte()
	}

	log.Debugf("[instrument] << %d binary bytes", size)
	return payload, nil
}

func readFull(rd *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := rd.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close shuts the socket down.
func (c *SCPIChannel) Close() error {
	return c.conn.Close()
}
