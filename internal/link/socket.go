package link

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	enginerrors "github.com/mmstreamer/engine/internal/errors"
)

// serverAbstractName builds the server-side Unix listen address:
// "s" <kind> <mode> "-" <socketName>, kind and mode as decimal enum values.
// Socket type and address family are not encoded as separate digits; both
// follow from kind.
func serverAbstractName(kind Kind, mode Mode, socketName string) string {
	return fmt.Sprintf("s%d%d-%s", int(kind), int(mode), socketName)
}

// clientAbstractName builds the client-side datagram local bind address:
// "c" <kind> <mode> "-" <serverSocketName>, encoded as in serverAbstractName.
func clientAbstractName(kind Kind, mode Mode, serverSocketName string) string {
	return fmt.Sprintf("c%d%d-%s", int(kind), int(mode), serverSocketName)
}

// unixSockaddr builds an abstract-namespace unix.SockaddrUnix: a leading
// NUL byte on the name marks it as abstract rather than filesystem-backed.
func unixSockaddr(name string) *unix.SockaddrUnix {
	return &unix.SockaddrUnix{Name: "\x00" + name}
}

// resolveInet resolves host/service into every candidate IPv4 address,
// following original_source/'s getaddrinfo-equivalent "try every resolved
// address in order until one succeeds" semantics.
func resolveInet(host, service string) ([]unix.SockaddrInet4, error) {
	port, err := strconv.Atoi(service)
	if err != nil {
		p, lerr := net.LookupPort("tcp", service)
		if lerr != nil {
			return nil, enginerrors.NewParamsError("link.resolveInet: service "+service, lerr)
		}
		port = p
	}
	if host == "" {
		host = "0.0.0.0"
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, enginerrors.NewIoError("link.resolveInet: lookup "+host, err)
	}
	var out []unix.SockaddrInet4
	for _, ip := range ips {
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		var addr unix.SockaddrInet4
		addr.Port = port
		copy(addr.Addr[:], v4)
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, enginerrors.NewIoError("link.resolveInet: no IPv4 address for "+host, nil)
	}
	return out, nil
}

func newRawSocket(kind Kind) (int, error) {
	fd, err := unix.Socket(kind.domain(), kind.sockType(), 0)
	if err != nil {
		return -1, enginerrors.NewIoError("link.socket", err)
	}
	return fd, nil
}

// Listen creates, binds, and (for stream kinds) listens on a server-side
// socket for the given kind/mode/recipient. maxClients is the backlog for
// stream kinds and is ignored for datagram kinds. The returned Link's
// socket is non-blocking and, for INET kinds, has SO_REUSEADDR set.
func Listen(kind Kind, mode Mode, recipient Recipient, socketName string, maxClients int) (*Link, error) {
	fd, err := newRawSocket(kind)
	if err != nil {
		return nil, err
	}

	var bindErr error
	var local unix.Sockaddr
	switch {
	case kind.unix():
		sa := unixSockaddr(serverAbstractName(kind, mode, socketName))
		bindErr = unix.Bind(fd, sa)
		local = sa
	default:
		addrs, rerr := resolveInet(recipient.Host, recipient.Service)
		if rerr != nil {
			unix.Close(fd)
			return nil, rerr
		}
		if rerr := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); rerr != nil {
			unix.Close(fd)
			return nil, enginerrors.NewIoError("link.setsockopt SO_REUSEADDR", rerr)
		}
		var lastErr error
		for _, a := range addrs {
			sa := a
			if e := unix.Bind(fd, &sa); e == nil {
				local = &sa
				lastErr = nil
				break
			} else {
				lastErr = e
			}
		}
		bindErr = lastErr
	}
	if bindErr != nil {
		unix.Close(fd)
		return nil, enginerrors.NewIoError("link.bind", bindErr)
	}

	if kind.connected() {
		if err := unix.Listen(fd, maxClients); err != nil {
			unix.Close(fd)
			return nil, enginerrors.NewIoError("link.listen", err)
		}
	}

	l := &Link{Sock: fd, Domain: kind.domain(), Type: kind.sockType(), LocalAddr: local}
	if err := setBlockingFd(fd, false); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Accept accepts one pending connection on a stream listener. Callers are
// expected to have already confirmed readiness via isReadyForReading. The
// returned Link is left in its default blocking mode: per spec.md §4.B,
// "set non-blocking" is the last step of each handshake branch, so the
// caller runs the handshake read/write while blocking and switches the
// link to non-blocking itself once the handshake succeeds (SetBlocking).
func Accept(listener *Link) (*Link, error) {
	fd, sa, err := unix.Accept(listener.Sock)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, enginerrors.NewTimeoutError("link.Accept", 0, err)
		}
		return nil, enginerrors.NewIoError("link.Accept", err)
	}
	if err := setBlockingFd(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Link{Sock: fd, Domain: listener.Domain, Type: listener.Type, RemoteAddr: sa}, nil
}

// Dial creates a client-side socket. Stream kinds connect to the resolved
// recipient while the socket is still blocking, so Dial returns only once
// the connect call has finished; the socket is switched to non-blocking
// afterwards. Datagram kinds bind a local abstract name (Unix)
// or an ephemeral local address (INET) and record the server's address as
// RemoteAddr/UseRemoteAddr so writeData can sendto it directly.
func Dial(kind Kind, mode Mode, recipient Recipient, serverSocketName string) (*Link, error) {
	fd, err := newRawSocket(kind)
	if err != nil {
		return nil, err
	}

	l := &Link{Sock: fd, Domain: kind.domain(), Type: kind.sockType()}

	if kind.unix() {
		if !kind.connected() {
			sa := unixSockaddr(clientAbstractName(kind, mode, serverSocketName))
			if err := unix.Bind(fd, sa); err != nil {
				unix.Close(fd)
				return nil, enginerrors.NewIoError("link.bind (client datagram)", err)
			}
			l.LocalAddr = sa
		}
		remote := unixSockaddr(serverAbstractName(kind, mode, recipient.SocketPath))
		if kind.connected() {
			if err := unix.Connect(fd, remote); err != nil && err != unix.EINPROGRESS {
				unix.Close(fd)
				return nil, enginerrors.NewIoError("link.connect", err)
			}
		} else {
			l.RemoteAddr = remote
			l.UseRemoteAddr = true
		}
	} else {
		addrs, rerr := resolveInet(recipient.Host, recipient.Service)
		if rerr != nil {
			unix.Close(fd)
			return nil, rerr
		}
		var lastErr error
		connected := false
		for _, a := range addrs {
			sa := a
			if kind.connected() {
				if e := unix.Connect(fd, &sa); e == nil || e == unix.EINPROGRESS {
					connected = true
					lastErr = nil
					break
				} else {
					lastErr = e
				}
			} else {
				l.RemoteAddr = &sa
				l.UseRemoteAddr = true
				connected = true
				break
			}
		}
		if !connected {
			unix.Close(fd)
			return nil, enginerrors.NewIoError("link.connect: all resolved addresses failed", lastErr)
		}
	}

	if err := setBlockingFd(fd, false); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// PeekDatagramPeer reads the sender address of the next pending datagram on
// a bound (but not connect()ed) datagram socket without consuming it, used
// by the server watcher to discover a new datagram client.
func PeekDatagramPeer(l *Link, scratch []byte) (unix.Sockaddr, int, error) {
	n, from, err := unix.Recvfrom(l.Sock, scratch, unix.MSG_PEEK)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, 0, enginerrors.NewTimeoutError("link.PeekDatagramPeer", 0, err)
		}
		return nil, 0, enginerrors.NewIoError("link.PeekDatagramPeer", err)
	}
	return from, n, nil
}
