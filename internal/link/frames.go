package link

import (
	"fmt"
	"strconv"
	"strings"
)

// customHeaderLiteral is the literal handshake greeting for Custom-mode links.
const customHeaderLiteral = "HELLO\r\n"

// PrepareCustomHeader returns the literal handshake bytes.
func PrepareCustomHeader() []byte { return []byte(customHeaderLiteral) }

// ParseCustomHeader is an identity no-op: any bytes received are accepted
// as the greeting. Returns true if buf is at least the expected length.
func ParseCustomHeader(buf []byte) bool { return len(buf) >= len(customHeaderLiteral) }

// CustomContent carries the server's advertised mime type and maximum
// frame size for Custom-mode links.
type CustomContent struct {
	Mime          string
	MaxBufferSize uint32
}

// PrepareCustomContent renders "Mime: <mime>\r\nMaxBufferSize: <u32>\r\n\r\n".
func PrepareCustomContent(c CustomContent) []byte {
	return []byte(fmt.Sprintf("Mime: %s\r\nMaxBufferSize: %d\r\n\r\n", c.Mime, c.MaxBufferSize))
}

// ParseCustomContent extracts Mime and MaxBufferSize. ok is false if
// MaxBufferSize did not parse to a positive value — callers treat that as
// the peer having rejected the handshake.
func ParseCustomContent(buf []byte) (c CustomContent, ok bool) {
	s := string(buf)
	var mime string
	var size uint32
	for _, line := range strings.Split(s, "\r\n") {
		if v, found := strings.CutPrefix(line, "Mime: "); found {
			mime = v
		} else if v, found := strings.CutPrefix(line, "MaxBufferSize: "); found {
			n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
			if err == nil {
				size = uint32(n)
			}
		}
	}
	if size == 0 {
		return CustomContent{}, false
	}
	return CustomContent{Mime: mime, MaxBufferSize: size}, true
}

// HttpGet is the client's handshake request in HTTP mode.
type HttpGet struct {
	Path    string
	Host    string
	Port    string
	Name    string
	Version string
}

// PrepareHttpGet renders the GET request line and headers.
func PrepareHttpGet(g HttpGet) []byte {
	return []byte(fmt.Sprintf(
		"GET /%s HTTP/1.0\r\nHOST: %s:%s\r\nUser-Agent: %s v%s\r\nConnection: keep-alive\r\n\r\n",
		g.Path, g.Host, g.Port, g.Name, g.Version))
}

// ParsedHttpGet is the result of parsing an HttpGet request.
type ParsedHttpGet struct {
	IsHttpGet bool
	Path      string
	Host      string
	Port      string
}

// ParseHttpGet sets IsHttpGet only if buf begins with "GET "; on success it
// extracts path, host, port.
func ParseHttpGet(buf []byte) ParsedHttpGet {
	s := string(buf)
	if !strings.HasPrefix(s, "GET ") {
		return ParsedHttpGet{}
	}
	rest := s[len("GET "):]
	sp := strings.IndexByte(rest, ' ')
	if sp < 0 {
		return ParsedHttpGet{IsHttpGet: true}
	}
	path := strings.TrimPrefix(rest[:sp], "/")

	out := ParsedHttpGet{IsHttpGet: true, Path: path}
	for _, line := range strings.Split(s, "\r\n") {
		if v, found := strings.CutPrefix(line, "HOST: "); found {
			hostPort := strings.SplitN(v, ":", 2)
			out.Host = hostPort[0]
			if len(hostPort) == 2 {
				out.Port = hostPort[1]
			}
		}
	}
	return out
}

// BoundaryFor renders the MJPEG multipart boundary token for name/version,
// shared by the 200 OK preamble and every subsequent HttpContent frame.
func BoundaryFor(name, version string) string {
	return fmt.Sprintf(".-_.%s-%s-%s.-_.", version, name, version)
}

// PrepareHttp200Ok renders the 200 OK preamble advertising the multipart
// boundary used by every subsequent HttpContent frame.
func PrepareHttp200Ok(name, version string) []byte {
	return []byte(fmt.Sprintf(
		"HTTP/1.0 200 OK\r\nContent-Type: multipart/x-mixed-replace;boundary=%s\r\n\r\n",
		BoundaryFor(name, version)))
}

// ParseHttp200Ok sets is200Ok iff the substring "200 OK" occurs, and
// extracts the negotiated boundary token if present.
func ParseHttp200Ok(buf []byte) (is200Ok bool, boundary string) {
	s := string(buf)
	is200Ok = strings.Contains(s, "200 OK")
	if idx := strings.Index(s, "boundary="); idx >= 0 {
		rest := s[idx+len("boundary="):]
		if end := strings.IndexAny(rest, "\r\n"); end >= 0 {
			rest = rest[:end]
		}
		boundary = strings.TrimSpace(rest)
	}
	return is200Ok, boundary
}

// httpErrorBody renders the fixed HTML body shared by 400 and 404.
func httpErrorBody(title, ip, port, path, extra string) string {
	return fmt.Sprintf("<html><head><title>%s</title></head><body><h1>%s</h1>%s:%s%s</body></html>",
		title, title, ip, port, extra+path)
}

// PrepareHttp400BadRequest renders the fixed 400 page for ip:port/path.
func PrepareHttp400BadRequest(ip, port, path string) []byte {
	body := httpErrorBody("400 Bad Request", ip, port, path, "/")
	return []byte(fmt.Sprintf("HTTP/1.0 400 Bad Request\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n%s",
		len(body), body))
}

// ParseHttp400BadRequest reports whether buf is a 400 response.
func ParseHttp400BadRequest(buf []byte) bool {
	return strings.Contains(string(buf), "400 Bad Request")
}

// PrepareHttp404NotFound renders the fixed 404 page echoing both the
// configured path and the originally requested path.
func PrepareHttp404NotFound(ip, port, configuredPath, requestedPath string) []byte {
	body := fmt.Sprintf(
		"<html><head><title>404 Not Found</title></head><body><h1>404 Not Found</h1>%s:%s/%s requested /%s</body></html>",
		ip, port, configuredPath, requestedPath)
	return []byte(fmt.Sprintf("HTTP/1.0 404 Not Found\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n%s",
		len(body), body))
}

// ParseHttp404NotFound reports whether buf is a 404 response.
func ParseHttp404NotFound(buf []byte) bool {
	return strings.Contains(string(buf), "404 Not Found")
}

// HttpContent is the per-frame MJPEG multipart boundary header.
type HttpContent struct {
	Boundary string
	Mime     string
	Length   int
}

// PrepareHttpContent renders the per-frame boundary+headers preamble; the
// caller appends Length body bytes after this.
func PrepareHttpContent(c HttpContent) []byte {
	return []byte(fmt.Sprintf("\r\n--%s\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n",
		c.Boundary, c.Mime, c.Length))
}

// ParsedHttpContent is the result of parsing an HttpContent header. A
// Length of zero signals "ignore this frame" — either the buffer did not
// start with "--" or no Content-Length header was present.
type ParsedHttpContent struct {
	Mime      string
	Length    int
	BodyStart int
}

// ParseHttpContent rejects any buffer not starting with "--" (after the
// leading CRLF, if present). On success it extracts mime and length and
// sets BodyStart to the offset of the first body byte, accounting for
// either "\n\r\n" or "\n\n" as the header/body separator.
func ParseHttpContent(buf []byte) ParsedHttpContent {
	s := string(buf)
	s = strings.TrimPrefix(s, "\r\n")
	if !strings.HasPrefix(s, "--") {
		return ParsedHttpContent{}
	}
	trimmed := len(buf) - len(s)

	sepLen := 0
	sepIdx := strings.Index(s, "\n\r\n")
	if sepIdx >= 0 {
		sepLen = 3
	} else {
		sepIdx = strings.Index(s, "\n\n")
		sepLen = 2
	}
	if sepIdx < 0 {
		return ParsedHttpContent{}
	}
	header := s[:sepIdx]

	out := ParsedHttpContent{}
	for _, line := range strings.Split(header, "\n") {
		line = strings.TrimRight(line, "\r")
		if v, found := strings.CutPrefix(line, "Content-Type: "); found {
			out.Mime = v
		} else if v, found := strings.CutPrefix(line, "Content-Length: "); found {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err == nil {
				out.Length = n
			}
		}
	}
	out.BodyStart = trimmed + sepIdx + sepLen
	return out
}
