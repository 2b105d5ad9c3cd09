package framework

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrCommandFailed is returned by Console.Run when the device answered
// with "Error: ...".
var ErrCommandFailed = errors.New("console command failed")

// Console is a client of a device's UDP remote console.
type Console struct {
	conn    net.Conn
	Timeout time.Duration
}

// DialConsole connects to the remote console at addr.
func DialConsole(addr string) (*Console, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Console{conn: conn, Timeout: 2 * time.Second}, nil
}

// Run sends line and returns the command output without the trailing
// "Done".
func (c *Console) Run(line string) (string, error) {
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return "", err
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.Timeout)); err != nil {
		return "", err
	}
	buf := make([]byte, 64*1024)
	n, err := c.conn.Read(buf)
	if err != nil {
		return "", err
	}
	reply := string(buf[:n])
	if out, ok := strings.CutSuffix(reply, "Done\n"); ok {
		return out, nil
	}
	if i := strings.LastIndex(reply, "Error: "); i >= 0 {
		return reply[:i], fmt.Errorf("%w: %s", ErrCommandFailed, strings.TrimSpace(reply[i+len("Error: "):]))
	}
	return reply, fmt.Errorf("unexpected reply %q", reply)
}

// WaitReady retries "matter config" until the device answers or timeout
// expires. The first call also covers `go run` compiling the binary.
func (c *Console) WaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_, err := c.Run("matter config")
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("console not ready: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// Close closes the connection.
func (c *Console) Close() error {
	return c.conn.Close()
}

// FreeUDPAddr returns a loopback address with a currently unused port.
func FreeUDPAddr() (string, error) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer pc.Close()
	return pc.LocalAddr().String(), nil
}
