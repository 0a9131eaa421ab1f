package link

import (
	"time"

	"golang.org/x/sys/unix"

	enginerrors "github.com/mmstreamer/engine/internal/errors"
)

func setBlockingFd(fd int, blocking bool) error {
	if err := unix.SetNonblock(fd, !blocking); err != nil {
		return enginerrors.NewIoError("link.setBlocking", err)
	}
	return nil
}

// SetBlocking toggles non-blocking mode on the link's socket.
func SetBlocking(l *Link, blocking bool) error {
	if l == nil || l.Sock < 0 {
		return enginerrors.NewParamsError("link.SetBlocking: nil link", nil)
	}
	return setBlockingFd(l.Sock, blocking)
}

// timevalFromMillis builds a unix.Timeval with one-millisecond resolution.
func timevalFromMillis(ms int) unix.Timeval {
	d := time.Duration(ms) * time.Millisecond
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return tv
}

// isReady is shared by isReadyForReading/isReadyForWriting: a single-fd
// select with a millisecond-resolution timeout.
func isReady(fd int, timeoutMs int, forWrite bool) (bool, error) {
	var rset, wset unix.FdSet
	set := &rset
	if forWrite {
		set = &wset
	}
	set.Zero()
	set.Set(fd)
	tv := timevalFromMillis(timeoutMs)

	n, err := unix.Select(fd+1, &rset, &wset, nil, &tv)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, enginerrors.NewIoError("link.select", err)
	}
	return n > 0 && set.IsSet(fd), nil
}

// IsReadyForReading probes readability within timeoutMs, one-millisecond
// resolution.
func IsReadyForReading(l *Link, timeoutMs int) (bool, error) {
	if l == nil || l.Sock < 0 {
		return false, enginerrors.NewParamsError("link.IsReadyForReading: nil link", nil)
	}
	return isReady(l.Sock, timeoutMs, false)
}

// IsReadyForWriting probes writability within timeoutMs.
func IsReadyForWriting(l *Link, timeoutMs int) (bool, error) {
	if l == nil || l.Sock < 0 {
		return false, enginerrors.NewParamsError("link.IsReadyForWriting: nil link", nil)
	}
	return isReady(l.Sock, timeoutMs, true)
}

// maxSendBlock bounds a single send call; WriteData starts with this block
// size and halves it each time a send reports "message too long".
const maxSendBlock = 16384

// ReadData attempts to fill buffer with len(buffer) bytes from src. If
// useRemoteAddr is set on src, recvfrom is used and the peer address is
// returned via outFrom; otherwise a plain read/recv is used. Partial reads
// loop until the buffer is full, EOF, or a non-transient error. A
// transient "would block" returns Busy with the bytes read so far in n. A
// zero-length successful read on a stream link means orderly peer
// shutdown and is reported as Ok with n == 0.
func ReadData(src *Link, buffer []byte) (status Status, n int, from unix.Sockaddr, err error) {
	if src == nil || src.Sock < 0 {
		return IOErrorStatus, 0, nil, enginerrors.NewParamsError("link.ReadData: nil link", nil)
	}
	if len(buffer) == 0 {
		return Ok, 0, nil, nil
	}

	total := 0
	for total < len(buffer) {
		var got int
		var rerr error
		if src.UseRemoteAddr || src.Type == unix.SOCK_DGRAM {
			got, from, rerr = unix.Recvfrom(src.Sock, buffer[total:], 0)
		} else {
			got, rerr = unix.Read(src.Sock, buffer[total:])
		}
		if rerr != nil {
			if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
				return Busy, total, from, nil
			}
			return IOErrorStatus, total, from, enginerrors.NewIoError("link.ReadData", rerr)
		}
		if got == 0 {
			// Orderly shutdown on a stream; a zero-length datagram is valid
			// and returned as-is (single recvfrom, no further looping).
			if src.Type != unix.SOCK_STREAM {
				return Ok, 0, from, nil
			}
			if total == 0 {
				return Ok, 0, from, nil
			}
			return Ok, total, from, nil
		}
		total += got
		if src.Type == unix.SOCK_DGRAM {
			// One datagram per call; never loop for more.
			return Ok, total, from, nil
		}
	}
	return Ok, total, from, nil
}

// ReadOnce performs a single read/recv call without looping to fill the
// buffer, used for variable-length handshake messages (CustomHeader,
// CustomContent, HttpGet, Http200Ok) whose total size is not known ahead
// of time and is almost always much shorter than the scratch buffer
// sized to hold them. On a non-blocking link with nothing pending it
// returns Busy with n == 0 so the caller can retry on its next tick; on a
// blocking link it blocks until at least one byte arrives. A zero-length
// successful read on a stream link means orderly peer shutdown and is
// reported as Ok with n == 0, matching ReadData's convention.
func ReadOnce(src *Link, buffer []byte) (status Status, n int, from unix.Sockaddr, err error) {
	if src == nil || src.Sock < 0 {
		return IOErrorStatus, 0, nil, enginerrors.NewParamsError("link.ReadOnce: nil link", nil)
	}
	if len(buffer) == 0 {
		return Ok, 0, nil, nil
	}

	var got int
	var rerr error
	if src.UseRemoteAddr || src.Type == unix.SOCK_DGRAM {
		got, from, rerr = unix.Recvfrom(src.Sock, buffer, 0)
	} else {
		got, rerr = unix.Read(src.Sock, buffer)
	}
	if rerr != nil {
		if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
			return Busy, 0, from, nil
		}
		return IOErrorStatus, 0, from, enginerrors.NewIoError("link.ReadOnce", rerr)
	}
	return Ok, got, from, nil
}

// WriteData writes buffer to dst. If UseRemoteAddr is set, sendto is used
// with dst.RemoteAddr as the peer; otherwise a plain write/send is used.
// When a single send would exceed maxSendBlock for a datagram-style
// recipient, WriteData falls into a block-by-block loop.
func WriteData(dst *Link, buffer []byte) (status Status, n int, err error) {
	if dst == nil || dst.Sock < 0 {
		return IOErrorStatus, 0, enginerrors.NewParamsError("link.WriteData: nil link", nil)
	}
	if len(buffer) == 0 {
		return Ok, 0, nil
	}

	write := func(chunkBuf []byte) (int, error) {
		if dst.UseRemoteAddr {
			if err := unix.Sendto(dst.Sock, chunkBuf, 0, dst.RemoteAddr); err != nil {
				return 0, err
			}
			return len(chunkBuf), nil
		}
		return unix.Write(dst.Sock, chunkBuf)
	}

	total := 0
	blockSize := maxSendBlock
	for total < len(buffer) {
		end := len(buffer)
		if end-total > blockSize {
			end = total + blockSize
		}
		got, werr := write(buffer[total:end])
		if werr != nil {
			if werr == unix.EAGAIN || werr == unix.EWOULDBLOCK {
				return Busy, total, nil
			}
			if werr == unix.EMSGSIZE {
				if blockSize <= 1 {
					return IOErrorStatus, total, enginerrors.NewIoError("link.WriteData: EMSGSIZE on minimal block", werr)
				}
				blockSize /= 2
				continue
			}
			return IOErrorStatus, total, enginerrors.NewIoError("link.WriteData", werr)
		}
		total += got
	}
	return Ok, total, nil
}
