// CRC: crc-MessageFramer.md, Spec: main.md
package protocol

import (
	"strconv"
	"strings"
)

// Version is the only protocol version spoken by servers and peers
const Version = "P2P-CI/1.0"

// CRLF terminates every line on the wire
const CRLF = "\r\n"

// Terminator separates the head of a message from its body
const Terminator = CRLF + CRLF

// Status codes used by the index server and the upload server
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusNotFound            = 404
	StatusInternalServerError = 500
	StatusVersionNotSupported = 505
)

// Methods understood by the index server (ADD, LOOKUP, LIST) and peers (GET)
const (
	MethodAdd    = "ADD"
	MethodLookup = "LOOKUP"
	MethodList   = "LIST"
	MethodGet    = "GET"
)

var reasons = map[int]string{
	StatusOK:                  "OK",
	StatusBadRequest:          "Bad Request",
	StatusNotFound:            "Not Found",
	StatusInternalServerError: "Internal Server Error",
	StatusVersionNotSupported: "P2P-CI Version Not Supported",
}

// Reason returns the reason phrase for a status code
func Reason(code int) string {
	if r, ok := reasons[code]; ok {
		return r
	}
	return "Unknown"
}

// Header is a single key/value pair; order on the wire is preserved
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered header list
type Headers []Header

// Get returns the value for key (exact match, last duplicate wins)
func (h Headers) Get(key string) (string, bool) {
	value, found := "", false
	for _, header := range h {
		if header.Key == key {
			value, found = header.Value, true
		}
	}
	return value, found
}

// Value returns the value for key or "" when absent
func (h Headers) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// Message is a decoded P2P-CI message: a start line, headers and an optional body
type Message struct {
	StartLine string
	Headers   Headers
	Body      string
}

// Encode renders a message with CRLF line endings; no header is added implicitly
func Encode(startLine string, headers Headers, body string) []byte {
	var b strings.Builder
	b.WriteString(startLine)
	b.WriteString(CRLF)
	for _, h := range headers {
		b.WriteString(h.Key)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString(CRLF)
	}
	b.WriteString(CRLF)
	b.WriteString(body)
	return []byte(b.String())
}

// BuildRequest renders "METHOD RESOURCE VERSION" followed by headers and body
func BuildRequest(method, resource string, headers Headers, body string) []byte {
	return Encode(method+" "+resource+" "+Version, headers, body)
}

// BuildStatus renders a status-line message
func BuildStatus(version string, code int, reason string, headers Headers, body string) []byte {
	return Encode(version+" "+strconv.Itoa(code)+" "+reason, headers, body)
}

// Decode splits raw text into start line, headers and body.
// The head ends at the first empty line; everything after it is the body.
func Decode(raw string) (*Message, error) {
	if !strings.Contains(raw, CRLF) {
		return nil, protocolErrorf("message is missing CRLF line endings")
	}

	head, body, _ := strings.Cut(raw, Terminator)
	lines := strings.Split(head, CRLF)

	msg := &Message{StartLine: strings.TrimSpace(lines[0]), Body: body}
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, protocolErrorf("malformed header line: %q", line)
		}
		msg.Headers = append(msg.Headers, Header{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
	}
	return msg, nil
}

// ParseRequestLine splits "METHOD RESOURCE... VERSION".
// The resource is every token between the method and the version, joined by single spaces.
func ParseRequestLine(line string) (method, resource, version string, err error) {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return "", "", "", protocolErrorf("malformed request line: %q", line)
	}
	method = parts[0]
	version = parts[len(parts)-1]
	resource = strings.Join(parts[1:len(parts)-1], " ")
	if resource == "" {
		return "", "", "", protocolErrorf("request line has no resource: %q", line)
	}
	return method, resource, version, nil
}

// ParseStatusLine splits "VERSION CODE REASON..."
func ParseStatusLine(line string) (version string, code int, reason string, err error) {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return "", 0, "", protocolErrorf("malformed status line: %q", line)
	}
	code, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", protocolErrorf("invalid status code in %q", line)
	}
	return parts[0], code, strings.Join(parts[2:], " "), nil
}

// ParseRFCResource accepts exactly "RFC <n>" and returns n
func ParseRFCResource(resource string) (int, error) {
	parts := strings.Fields(resource)
	if len(parts) != 2 || parts[0] != "RFC" {
		return 0, protocolErrorf("invalid resource: %q", resource)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n <= 0 {
		return 0, protocolErrorf("invalid RFC number: %q", parts[1])
	}
	return n, nil
}

// RFCResource renders the resource form of a file number
func RFCResource(n int) string {
	return "RFC " + strconv.Itoa(n)
}

// Printable renders CRLF as plain newlines for logs
func Printable(raw string) string {
	return strings.ReplaceAll(raw, CRLF, "\n")
}
