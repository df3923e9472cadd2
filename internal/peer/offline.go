// CRC: crc-DirectoryClient.md, Spec: main.md
package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zot/p2p-ci/internal/pidfile"
	"github.com/zot/p2p-ci/internal/protocol"
)

// offlineEntry is one record in the offline index file
type offlineEntry struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Title string `json:"title"`
}

// offlineDoc is the offline index file: {"rfcs": {"<n>": {...}}}
type offlineDoc struct {
	RFCs map[string]offlineEntry `json:"rfcs"`
}

// OfflineDirectory answers directory requests from a shared JSON file
// instead of the index server. Each number maps to a single location.
// CRC: crc-DirectoryClient.md
type OfflineDirectory struct {
	path     string
	peerHost string
	peerPort int
	logger   zerolog.Logger
}

// NewOfflineDirectory creates the file's parent directory if needed
func NewOfflineDirectory(path, peerHost string, peerPort int, logger zerolog.Logger) (*OfflineDirectory, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create offline index directory: %w", err)
		}
	}
	return &OfflineDirectory{
		path:     path,
		peerHost: peerHost,
		peerPort: peerPort,
		logger:   logger.With().Str("component", "offline-directory").Logger(),
	}, nil
}

// Add records this peer as the location of RFC n
func (d *OfflineDirectory) Add(ctx context.Context, n int, title string) (*Response, error) {
	return d.handle(protocol.MethodAdd, protocol.RFCResource(n), protocol.Headers{
		{Key: "Host", Value: d.peerHost},
		{Key: "Port", Value: strconv.Itoa(d.peerPort)},
		{Key: "Title", Value: title},
	})
}

// Lookup returns the recorded location of RFC n
func (d *OfflineDirectory) Lookup(ctx context.Context, n int, title string) (*Response, error) {
	return d.handle(protocol.MethodLookup, protocol.RFCResource(n), nil)
}

// List returns every recorded location
func (d *OfflineDirectory) List(ctx context.Context) (*Response, error) {
	return d.handle(protocol.MethodList, "ALL", nil)
}

// Offline is true: the file stands in for the server
func (d *OfflineDirectory) Offline() bool {
	return true
}

// Close is a no-op
func (d *OfflineDirectory) Close() error {
	return nil
}

// handle applies one request to the file under an exclusive lock
func (d *OfflineDirectory) handle(method, resource string, headers protocol.Headers) (*Response, error) {
	var resp *Response
	err := pidfile.WithLock(d.path, func(file *os.File) error {
		doc := d.load(file)

		switch method {
		case protocol.MethodAdd:
			n, err := protocol.ParseRFCResource(resource)
			if err != nil {
				resp = offlineResponse(protocol.StatusBadRequest, "")
				return nil
			}
			host, hasHost := headers.Get("Host")
			portText, hasPort := headers.Get("Port")
			if !hasHost || !hasPort {
				resp = offlineResponse(protocol.StatusBadRequest, "")
				return nil
			}
			port, err := strconv.Atoi(portText)
			if err != nil {
				resp = offlineResponse(protocol.StatusBadRequest, "")
				return nil
			}
			title, _ := headers.Get("Title")
			if host == "" || title == "" {
				resp = offlineResponse(protocol.StatusBadRequest, "")
				return nil
			}
			key := strconv.Itoa(n)
			doc.RFCs[key] = offlineEntry{Host: host, Port: port, Title: title}
			if err := save(file, doc); err != nil {
				return err
			}
			resp = offlineResponse(protocol.StatusOK, formatOffline(map[string]offlineEntry{key: doc.RFCs[key]}))

		case protocol.MethodLookup:
			n, err := protocol.ParseRFCResource(resource)
			if err != nil {
				resp = offlineResponse(protocol.StatusBadRequest, "")
				return nil
			}
			key := strconv.Itoa(n)
			entry, ok := doc.RFCs[key]
			if !ok {
				resp = offlineResponse(protocol.StatusNotFound, "")
				return nil
			}
			resp = offlineResponse(protocol.StatusOK, formatOffline(map[string]offlineEntry{key: entry}))

		case protocol.MethodList:
			body := formatOffline(doc.RFCs)
			if body == "" {
				resp = offlineResponse(protocol.StatusNotFound, "")
				return nil
			}
			resp = offlineResponse(protocol.StatusOK, body)

		default:
			resp = offlineResponse(protocol.StatusBadRequest, "")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("offline index %s: %w", d.path, err)
	}
	return resp, nil
}

func (d *OfflineDirectory) load(file *os.File) *offlineDoc {
	doc := &offlineDoc{}
	data, err := io.ReadAll(file)
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, doc); err != nil {
			d.logger.Warn().Str("path", d.path).Msg("offline index is corrupted; starting fresh")
			doc = &offlineDoc{}
		}
	}
	if doc.RFCs == nil {
		doc.RFCs = make(map[string]offlineEntry)
	}
	return doc
}

func save(file *os.File, doc *offlineDoc) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

// formatOffline renders entries ordered by number
func formatOffline(rfcs map[string]offlineEntry) string {
	type numbered struct {
		n int
		e offlineEntry
	}
	var items []numbered
	for key, e := range rfcs {
		n, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		items = append(items, numbered{n, e})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].n < items[j].n })

	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = protocol.FormatEntry(it.n, it.e.Title, it.e.Host, it.e.Port)
	}
	return strings.Join(lines, protocol.CRLF)
}

// offlineResponse builds the same raw form the index server sends
func offlineResponse(code int, body string) *Response {
	statusLine := protocol.Version + " " + strconv.Itoa(code) + " " + protocol.Reason(code)
	raw := statusLine
	if body != "" {
		raw += protocol.Terminator + body
	}
	raw += protocol.Terminator
	return &Response{
		StatusCode: code,
		Reason:     protocol.Reason(code),
		Body:       body,
		Raw:        raw,
		StatusLine: statusLine,
	}
}
