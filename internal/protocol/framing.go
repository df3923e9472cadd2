// CRC: crc-MessageFramer.md, Spec: main.md
package protocol

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

const chunkSize = 4096

var terminator = []byte(Terminator)

// ReadHead reads until the accumulated bytes contain the head terminator.
// It returns io.EOF when the peer closed before sending anything, and the
// partial text with io.ErrUnexpectedEOF when it closed mid-message.
func ReadHead(r io.Reader) (string, error) {
	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for !bytes.Contains(buf.Bytes(), terminator) {
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if err != nil {
			if errors.Is(err, io.EOF) {
				if bytes.Contains(buf.Bytes(), terminator) {
					break
				}
				if buf.Len() == 0 {
					return "", io.EOF
				}
				return buf.String(), io.ErrUnexpectedEOF
			}
			return buf.String(), err
		}
	}
	return buf.String(), nil
}

// HeadReader reads successive request heads from one connection.
// Bytes received before a failed read stay buffered, so a read deadline
// can be used as a poll without losing part of a request.
type HeadReader struct {
	r     io.Reader
	buf   bytes.Buffer
	chunk []byte
}

// NewHeadReader returns a HeadReader on r
func NewHeadReader(r io.Reader) *HeadReader {
	return &HeadReader{r: r, chunk: make([]byte, chunkSize)}
}

// Next returns the next head, terminator included. It returns io.EOF when
// the peer closed between messages and io.ErrUnexpectedEOF when it closed
// mid-message; the partial message is discarded in that case.
func (h *HeadReader) Next() (string, error) {
	for {
		if i := bytes.Index(h.buf.Bytes(), terminator); i >= 0 {
			return string(h.buf.Next(i + len(terminator))), nil
		}
		n, err := h.r.Read(h.chunk)
		h.buf.Write(h.chunk[:n])
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if bytes.Contains(h.buf.Bytes(), terminator) {
			continue
		}
		if h.buf.Len() == 0 {
			return "", io.EOF
		}
		h.buf.Reset()
		return "", io.ErrUnexpectedEOF
	}
}

// ReadTerminated reads until the accumulated bytes end with the terminator.
// Index server responses carry no length, so the trailing empty line marks the end.
func ReadTerminated(r io.Reader, addr string) (string, error) {
	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for !bytes.HasSuffix(buf.Bytes(), terminator) {
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", &ConnectivityError{Addr: addr, Err: errors.New("connection closed by server")}
			}
			return "", &ConnectivityError{Addr: addr, Err: err}
		}
	}
	return buf.String(), nil
}

// ReadContentLength reads the head, then keeps reading until the body holds
// Content-Length bytes or the peer closes. A missing length means no body.
func ReadContentLength(r io.Reader) (string, error) {
	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for !bytes.Contains(buf.Bytes(), terminator) {
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf.String(), nil
			}
			return buf.String(), err
		}
	}

	head, _, _ := bytes.Cut(buf.Bytes(), terminator)
	want := contentLength(string(head))
	headLen := len(head) + len(terminator)

	for buf.Len()-headLen < want {
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return buf.String(), err
		}
	}
	return buf.String(), nil
}

func contentLength(head string) int {
	for _, line := range strings.Split(head, CRLF)[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "Content-Length" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}
