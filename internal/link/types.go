// Package link is the stateless wire-framing and raw-socket layer shared by
// the server and client components. It holds no per-connection state beyond
// what is passed in on each call; every Link is owned by whichever
// component created its socket.
package link

import (
	"golang.org/x/sys/unix"
)

// Kind selects the address family and connection orientation of a Link.
type Kind int

const (
	InetStream Kind = iota
	InetDgram
	UnixStream
	UnixDgram
)

func (k Kind) String() string {
	switch k {
	case InetStream:
		return "InetStream"
	case InetDgram:
		return "InetDgram"
	case UnixStream:
		return "UnixStream"
	case UnixDgram:
		return "UnixDgram"
	default:
		return "Unknown"
	}
}

// connected reports whether this kind is connection-oriented (stream).
func (k Kind) connected() bool {
	return k == InetStream || k == UnixStream
}

// unix reports whether this kind uses the AF_UNIX family.
func (k Kind) unix() bool {
	return k == UnixStream || k == UnixDgram
}

func (k Kind) domain() int {
	if k.unix() {
		return unix.AF_UNIX
	}
	return unix.AF_INET
}

func (k Kind) sockType() int {
	if k.connected() {
		return unix.SOCK_STREAM
	}
	return unix.SOCK_DGRAM
}

// Mode selects the handshake and per-frame framing used over a Link.
type Mode int

const (
	Standard Mode = iota
	Http
	Custom
)

func (m Mode) String() string {
	switch m {
	case Standard:
		return "Standard"
	case Http:
		return "Http"
	case Custom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// AcceptMode controls whether an accepted server-side client is
// automatically marked as an authorized receiver.
type AcceptMode int

const (
	Automatic AcceptMode = iota
	Manual
)

// Recipient is either a DNS-resolvable {host, service} pair or a Unix
// socket path (filesystem or abstract-namespace name, without the leading
// NUL — callers of the Unix dial/listen helpers add it per convention).
// Exactly one of the two forms is populated.
type Recipient struct {
	Host       string
	Service    string
	SocketPath string
}

// IsInet reports whether the recipient names a host/service pair.
func (r Recipient) IsInet() bool { return r.Host != "" || r.Service != "" }

// Status is the outcome of an I/O primitive. No exceptions escape this
// package; every fallible call returns one of these three.
type Status int

const (
	Ok Status = iota
	Busy
	IOErrorStatus
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "Ok"
	case Busy:
		return "Busy"
	default:
		return "Error"
	}
}

// Link is the endpoint record shared by every socket this package creates.
// ID is a 32-bit identifier assigned by the caller (the server assigns it
// from currentClientCount + wallClockSeconds at accept time; the client
// leaves it zero for its own outbound socket).
type Link struct {
	ID            uint32
	Sock          int
	Domain        int
	Type          int
	LocalAddr     unix.Sockaddr
	RemoteAddr    unix.Sockaddr
	UseRemoteAddr bool
	PData         any
}

// Close closes the underlying socket. Safe to call on a nil Link or one
// whose socket is already closed (best-effort, error discarded by callers
// that are already tearing down).
func (l *Link) Close() error {
	if l == nil || l.Sock <= 0 {
		return nil
	}
	err := unix.Close(l.Sock)
	l.Sock = -1
	return err
}
