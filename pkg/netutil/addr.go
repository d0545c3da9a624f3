// Package netutil resolves the "host:port" addresses peers identify each
// other by. Addresses are compared byte-for-byte everywhere else in the
// program, so this is the only place where any normalization happens.
package netutil

import (
	"net"
	"strings"
)

// ParseAddress turns an operator-supplied token into a peer address. A token
// that already contains ':' is taken verbatim; a bare port gets prefixed
// with the machine's outbound IP.
func ParseAddress(token string) string {
	if strings.Contains(token, ":") {
		return token
	}
	return net.JoinHostPort(LocalIP(), token)
}

// LocalIP returns the IP the OS would route outbound traffic through. It
// opens a UDP socket toward a public address; no packet is ever sent, the
// connect only selects a route. Falls back to loopback when the host has no
// route at all.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
