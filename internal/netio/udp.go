// Package netio implements the datagram endpoint contract of §6.1: bind a
// local UDP port, send best-effort, and receive with a bounded timeout. The
// read/write shape follows the teacher pack's own UDP examples
// (mcastellin-golang-mastery/dns/udp.go, dns-server/main.go), adapted from a
// single-client echo loop to the bind/send/poll/close contract the gossip
// core depends on.
package netio

import (
	"errors"
	"net"
	"time"
)

const (
	// RecvBufMin is the smallest accepted receive buffer (§5 Resources).
	RecvBufMin = 1024
	// RecvBufMax fits one IPv4 datagram (§5 Resources).
	RecvBufMax = 65000
	// RecvBufDefault is used when the requested size falls outside bounds.
	RecvBufDefault = 64 * 1024

	// readTimeout bounds every Poll call, which in turn bounds shutdown
	// latency to one timeout interval (§5 Cancellation).
	readTimeout = 100 * time.Millisecond
)

// Endpoint is a bound UDP socket exposing best-effort send and a
// timed, single-packet receive (§6.1).
type Endpoint struct {
	conn *net.UDPConn
	buf  []byte
}

// Open binds a UDP socket at bindIP:port. recvBufLen sizes a receive buffer
// owned by the endpoint; a value outside [RecvBufMin, RecvBufMax] is replaced
// by RecvBufDefault (which is itself larger than RecvBufMax).
func Open(bindIP string, port int, recvBufLen int) (*Endpoint, error) {
	ip := net.ParseIP(bindIP)
	if bindIP == "" {
		ip = net.IPv4zero
	}
	addr := &net.UDPAddr{IP: ip, Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	if recvBufLen < RecvBufMin || recvBufLen > RecvBufMax {
		recvBufLen = RecvBufDefault
	}
	return &Endpoint{conn: conn, buf: make([]byte, recvBufLen)}, nil
}

// LocalAddr returns the bound local address, useful when port 0 was
// requested and the kernel picked one.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// Send writes buf to remote on a best-effort basis.
func (e *Endpoint) Send(buf []byte, remote *net.UDPAddr) (int, error) {
	return e.conn.WriteToUDP(buf, remote)
}

// Poll invokes callback(bytes, from) for one received packet, or returns nil
// when the 100ms read deadline elapses with nothing to read — the
// "non-blocking recv with 100ms timeout" of §4.5 step 1.
func (e *Endpoint) Poll(callback func(buf []byte, from *net.UDPAddr)) error {
	if err := e.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return err
	}

	n, addr, err := e.conn.ReadFromUDP(e.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	}

	callback(e.buf[:n], addr)
	return nil
}

// Close releases the socket and the receive buffer.
func (e *Endpoint) Close() error {
	e.buf = nil
	return e.conn.Close()
}
