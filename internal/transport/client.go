// Package transport moves single control messages: one fresh TCP connection
// per message, one write, one reply read, close. There is no connection
// reuse and no framing beyond the read buffer; the 3 s deadlines are the
// only liveness mechanism the control plane has.
package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/mvolf/hashswarm/internal/config"
	"github.com/mvolf/hashswarm/internal/protocol"
)

// Exchange sends msg to its To address and returns the decoded reply.
// Any failure along the way (connect, write, read, decode) is a send
// failure; callers treat the message as never delivered.
func Exchange(msg *protocol.Message) (*protocol.Message, error) {
	cfg := config.Load()

	conn, err := net.DialTimeout("tcp", msg.To, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: connect %s: %w", msg.To, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
	if _, err := conn.Write([]byte(msg.Encode())); err != nil {
		return nil, fmt.Errorf("transport: write to %s: %w", msg.To, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	buf := make([]byte, cfg.ReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return nil, fmt.Errorf("transport: no reply from %s: %w", msg.To, err)
	}

	reply, err := protocol.Decode(string(buf[:n]))
	if err != nil {
		return nil, fmt.Errorf("transport: bad reply from %s: %w", msg.To, err)
	}
	return reply, nil
}
