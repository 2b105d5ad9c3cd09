package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
)

// MaxPacketSize bounds a remote console datagram.
const MaxPacketSize = 1280

// ServePacket serves the remote console on pc until ctx is done. Every
// datagram carries one command line. The reply holds the command output
// followed by "Done", or by "Error: <msg>" when the command failed. pc is
// closed on return.
func (e *Engine) ServePacket(ctx context.Context, pc net.PacketConn) error {
	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			pc.Close()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		pc.Close()
		wg.Wait()
	}()

	buf := make([]byte, MaxPacketSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		reply := e.execPacket(ctx, string(buf[:n]))
		if _, err := pc.WriteTo(reply, addr); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (e *Engine) execPacket(ctx context.Context, line string) []byte {
	var out bytes.Buffer
	if err := e.ExecLine(ctx, line, &out); err != nil {
		fmt.Fprintf(&out, "Error: %v\n", err)
	} else {
		out.WriteString("Done\n")
	}
	b := out.Bytes()
	if len(b) > MaxPacketSize {
		b = append(b[:MaxPacketSize-len(truncated)], truncated...)
	}
	return b
}

var truncated = []byte("...\n")
