package node

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mvolf/hashswarm/internal/config"
	"github.com/mvolf/hashswarm/internal/protocol"
)

// Listen binds 0.0.0.0 on the node's port and serves inbound control
// messages until the process dies. Bind failure is the only fatal error in
// the system; everything after that is per-connection and recoverable.
func (n *Node) Listen() error {
	idx := strings.LastIndex(n.address, ":")
	if idx < 0 {
		return fmt.Errorf("node: address %q has no port", n.address)
	}
	bindAddr := "0.0.0.0:" + n.address[idx+1:]

	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("node: bind %s: %w", bindAddr, err)
	}
	n.log.Info("listening", "bind", bindAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			n.log.Warn("accept failed", "error", err)
			continue
		}

		if !n.IsCommunicating() {
			n.log.Info("rejecting connection, communication paused",
				"remote", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		go n.serveConn(conn)
	}
}

// serveConn performs the one-shot request/ACK exchange on an accepted
// connection: single read, decode, gossip-add the sender, dispatch, reply.
func (n *Node) serveConn(conn net.Conn) {
	defer conn.Close()
	cfg := config.Load()

	_ = conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	buf := make([]byte, cfg.ReadBufferSize)
	read, err := conn.Read(buf)
	if err != nil || read == 0 {
		n.log.Warn("failed to read inbound message", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	msg, err := protocol.Decode(string(buf[:read]))
	if err != nil {
		n.log.Warn("failed to decode inbound message", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	n.log.Debug("received message", "type", msg.Kind.String(), "from", msg.From)

	n.gossipOnContact(msg.From)
	n.handleMessage(msg)

	ack := protocol.NewAck(n.address, msg.From)
	_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
	if _, err := conn.Write([]byte(ack.Encode())); err != nil {
		n.log.Warn("failed to write ack", "to", msg.From, "error", err)
	}
}

// gossipOnContact adds an unknown sender as a Sibling. A leader
// additionally floods CalculatePower so the newcomer joins the working set.
func (n *Node) gossipOnContact(from string) {
	if n.IsFriend(from) {
		return
	}

	n.log.Info("message from unknown peer, adding as friend", "peer", from)
	n.AddFriend(from)

	if n.IsLeader() {
		go n.sendCalculatePowerToFriends(n.address)
	}
}

// sendCalculatePowerToFriends fans CalculatePower out to every known
// friend, each on its own goroutine; failures are ignored.
func (n *Node) sendCalculatePowerToFriends(leaderAddress string) {
	for _, addr := range n.FriendAddresses() {
		go func(to string) {
			msg := protocol.NewCalculatePower(n.address, to, leaderAddress)
			if _, err := n.send(msg); err != nil {
				n.log.Debug("calculate power not delivered", "to", to, "error", err)
			}
		}(addr)
	}
}
