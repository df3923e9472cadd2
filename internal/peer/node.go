// CRC: crc-PeerNode.md, Spec: main.md
package peer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zot/p2p-ci/internal/protocol"
	"github.com/zot/p2p-ci/internal/storage"
)

// Location is a peer advertising a file, parsed from a LOOKUP or LIST line
type Location struct {
	Number int
	Title  string
	Host   string
	Port   int
}

// DownloadResult describes a completed download.
// AddResponse and PeerRaw are empty when the file was already local.
type DownloadResult struct {
	Path        string
	AddResponse *Response
	PeerRaw     string
}

// NodeConfig identifies this peer's upload endpoint
type NodeConfig struct {
	Host string
	Port int
}

// Node ties the directory, the upload server, the fetch client and the
// local store together into the peer's user-facing operations.
// CRC: crc-PeerNode.md
type Node struct {
	config NodeConfig
	dir    Directory
	upload *UploadServer
	store  *storage.Store
	fetch  *FetchClient
	logger zerolog.Logger
}

// NewNode wires a peer node
func NewNode(cfg NodeConfig, dir Directory, upload *UploadServer, store *storage.Store, fetch *FetchClient, logger zerolog.Logger) *Node {
	return &Node{
		config: cfg,
		dir:    dir,
		upload: upload,
		store:  store,
		fetch:  fetch,
		logger: logger.With().Str("component", "node").Logger(),
	}
}

// Start starts the upload server, then advertises the local store.
// A failed initial sync is logged, not returned.
// Sequence: seq-peer-startup.md
func (n *Node) Start(ctx context.Context) error {
	if err := n.upload.Start(); err != nil {
		return err
	}
	if err := n.Sync(ctx); err != nil {
		n.logger.Warn().Err(err).Msg("initial sync failed")
	}
	return nil
}

// Shutdown stops serving and closes the directory connection
func (n *Node) Shutdown() error {
	n.upload.Stop()
	return n.dir.Close()
}

// Store returns the local RFC store
func (n *Node) Store() *storage.Store {
	return n.store
}

// Offline reports whether the directory is the offline file
func (n *Node) Offline() bool {
	return n.dir.Offline()
}

func (n *Node) isSelf(host string, port int) bool {
	return host == n.config.Host && port == n.config.Port
}

// Sync ADDs every stored RFC, titled by its first line.
// Per-file failures are logged and the remaining files are still tried;
// the first connectivity failure is returned once the loop is done.
func (n *Node) Sync(ctx context.Context) error {
	numbers, err := n.store.List()
	if err != nil {
		return fmt.Errorf("failed to list local store: %w", err)
	}

	var lost error
	for _, num := range numbers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		title := n.store.Title(num)
		resp, err := n.dir.Add(ctx, num, title)
		if err != nil {
			var cerr *protocol.ConnectivityError
			if errors.As(err, &cerr) && lost == nil {
				lost = err
			}
			n.logger.Warn().Err(err).Int("rfc", num).Msg("unable to sync file")
			continue
		}
		if resp.StatusCode != protocol.StatusOK {
			n.logger.Warn().Int("rfc", num).Int("status", resp.StatusCode).Str("reason", resp.Reason).Msg("failed to register local RFC")
			continue
		}
		n.logger.Info().Int("rfc", num).Str("title", title).Msg("registered local RFC")
	}
	return lost
}

// AddLocal copies source into the store as RFC num and advertises it
func (n *Node) AddLocal(ctx context.Context, num int, title, source string) (*Response, error) {
	if _, err := n.store.Import(num, source); err != nil {
		return nil, err
	}
	resp, err := n.dir.Add(ctx, num, title)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != protocol.StatusOK {
		return resp, &protocol.ApplicationError{Code: resp.StatusCode, Reason: resp.Reason, Op: "ADD"}
	}
	n.logger.Info().Int("rfc", num).Str("title", title).Str("source", source).Msg("added RFC")
	return resp, nil
}

// List fetches the whole index and refreshes local copies from it.
// An empty index (404) is not an error.
func (n *Node) List(ctx context.Context) (*Response, error) {
	resp, err := n.dir.List(ctx)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case protocol.StatusOK:
		n.refresh(ctx, resp.Locations())
	case protocol.StatusNotFound:
		n.logger.Info().Msg("LIST returned empty index")
	default:
		return resp, &protocol.ApplicationError{Code: resp.StatusCode, Reason: resp.Reason, Op: "LIST"}
	}
	return resp, nil
}

// Lookup asks which peers hold RFC num
func (n *Node) Lookup(ctx context.Context, num int, title string) (*Response, []Location, error) {
	resp, err := n.dir.Lookup(ctx, num, title)
	if err != nil {
		return nil, nil, err
	}
	switch resp.StatusCode {
	case protocol.StatusOK:
	case protocol.StatusNotFound:
		n.logger.Info().Int("rfc", num).Msg("LOOKUP returned no results")
		return resp, nil, nil
	default:
		return resp, nil, &protocol.ApplicationError{Code: resp.StatusCode, Reason: resp.Reason, Op: "LOOKUP"}
	}

	locations := resp.Locations()
	n.refresh(ctx, locations)
	return resp, locations, nil
}

// DownloadSpecific fetches RFC num from host:port, stores it and advertises
// this peer as a new holder. A rejected ADD is only logged.
// Sequence: seq-download.md
func (n *Node) DownloadSpecific(ctx context.Context, num int, host string, port int, title string) (*DownloadResult, error) {
	result, err := n.fetch.Get(ctx, num, host, port)
	if err != nil {
		return nil, err
	}
	path, err := n.store.Save(num, []byte(result.Body))
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = storage.TitleOf([]byte(result.Body), num)
	}

	dl := &DownloadResult{Path: path, PeerRaw: result.Raw}
	resp, err := n.dir.Add(ctx, num, title)
	switch {
	case err != nil:
		n.logger.Warn().Err(err).Int("rfc", num).Msg("ADD after download failed")
	case resp.StatusCode != protocol.StatusOK:
		dl.AddResponse = resp
		n.logger.Warn().Int("rfc", num).Int("status", resp.StatusCode).Str("reason", resp.Reason).Msg("ADD after download failed")
	default:
		dl.AddResponse = resp
		n.logger.Info().Int("rfc", num).Str("host", host).Int("port", port).Msg("downloaded RFC")
	}
	return dl, nil
}

// DownloadFromPeers tries candidates in order until one succeeds.
// A candidate that is this peer counts only when the file is already local.
func (n *Node) DownloadFromPeers(ctx context.Context, num int, candidates []Location) (*DownloadResult, error) {
	for _, c := range candidates {
		if n.isSelf(c.Host, c.Port) {
			if n.store.Has(num) {
				n.logger.Info().Int("rfc", num).Msg("RFC already up to date locally")
				return &DownloadResult{Path: n.store.PathFor(num)}, nil
			}
			continue
		}

		result, err := n.DownloadSpecific(ctx, num, c.Host, c.Port, c.Title)
		if err != nil {
			n.logger.Warn().Err(err).Str("host", c.Host).Int("port", c.Port).Msg("failed download")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return result, nil
	}
	return nil, fmt.Errorf("RFC %d: no peers available or download failed", num)
}

// Seed copies *.txt files from dir into the store; the number is taken from
// the "_<n>" suffix of each file name. It returns how many were imported.
func (n *Node) Seed(dir string) (int, error) {
	imported, skipped, err := n.store.ImportDir(dir)
	for _, path := range skipped {
		n.logger.Warn().Str("path", path).Msg("skipping file without RFC number")
	}
	return imported, err
}

// refresh overwrites local copies with the versions advertised by other peers
func (n *Node) refresh(ctx context.Context, locations []Location) {
	if n.dir.Offline() {
		return
	}
	for _, loc := range locations {
		if !n.store.Has(loc.Number) || n.isSelf(loc.Host, loc.Port) {
			continue
		}
		result, err := n.fetch.Get(ctx, loc.Number, loc.Host, loc.Port)
		if err != nil {
			n.logger.Warn().Err(err).Int("rfc", loc.Number).Str("host", loc.Host).Int("port", loc.Port).Msg("failed to refresh RFC")
			continue
		}
		if _, err := n.store.Save(loc.Number, []byte(result.Body)); err != nil {
			n.logger.Warn().Err(err).Int("rfc", loc.Number).Msg("failed to save refreshed RFC")
			continue
		}
		n.logger.Info().Int("rfc", loc.Number).Str("host", loc.Host).Int("port", loc.Port).Msg("refreshed local RFC")
	}
}
