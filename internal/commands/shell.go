// CRC: crc-PeerShell.md, Spec: main.md
package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/rs/zerolog"

	"github.com/zot/p2p-ci/internal/peer"
	"github.com/zot/p2p-ci/internal/protocol"
)

const shellHelp = `Commands:
  help                      Show this message
  sync                      Register all local RFCs with the central server
  seed [dir]                Copy sample RFCs into the local store and register them
  list                      List the central index as returned by the server
  local                     List RFC files stored locally
  lookup <rfc> [title]      Find peers that host an RFC
  add <rfc> <file> "Title"  Copy a file into the local store and ADD to server
  get <rfc> <host> <port>   Download RFC content from a specific peer
  fetch <rfc>               LOOKUP an RFC and download it from the first peer that answers
  exit                      Quit the shell
`

// errQuit ends the shell loop
var errQuit = errors.New("quit")

// Shell is the interactive peer prompt
// CRC: crc-PeerShell.md
type Shell struct {
	node      *peer.Node
	sampleDir string
	in        io.Reader
	out       io.Writer
	logger    zerolog.Logger
}

// NewShell creates a shell reading commands from in
func NewShell(node *peer.Node, sampleDir string, in io.Reader, out io.Writer, logger zerolog.Logger) *Shell {
	return &Shell{
		node:      node,
		sampleDir: sampleDir,
		in:        in,
		out:       out,
		logger:    logger.With().Str("component", "shell").Logger(),
	}
}

// Run reads and dispatches commands until exit, end of input, ctx
// cancellation, or the loss of the central server in online mode
func (s *Shell) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(s.out, "Peer started. Type 'help' for commands. Ctrl-D or 'exit' to quit.")
	for {
		fmt.Fprint(s.out, "peer> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			line = l
		}

		err := s.Dispatch(ctx, line)
		switch {
		case err == nil:
		case errors.Is(err, errQuit):
			return nil
		case isConnectivity(err) && !s.node.Offline():
			s.logger.Error().Err(err).Msg("connection to central server lost")
			fmt.Fprintln(s.out, "Central server connection lost. Exiting.")
			return err
		default:
			s.logger.Error().Err(err).Msg("command failed")
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

func isConnectivity(err error) bool {
	var cerr *protocol.ConnectivityError
	return errors.As(err, &cerr)
}

// Dispatch runs a single command line
func (s *Shell) Dispatch(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("cannot parse command: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(tokens[0]), tokens[1:]

	switch cmd {
	case "exit", "quit":
		return errQuit
	case "help":
		fmt.Fprint(s.out, shellHelp)
		return nil
	case "sync":
		if err := s.node.Sync(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "Synced local RFCs with central server.")
		return nil
	case "seed":
		return s.seed(ctx, args)
	case "list":
		resp, err := s.node.List(ctx)
		if err != nil {
			return err
		}
		s.printRaw("LIST response:", resp.Raw)
		return nil
	case "local":
		return s.local()
	case "lookup":
		return s.lookup(ctx, args)
	case "add":
		return s.add(ctx, args)
	case "get", "download":
		return s.get(ctx, args)
	case "fetch":
		return s.fetch(ctx, args)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (s *Shell) printRaw(label, raw string) {
	fmt.Fprintln(s.out, label)
	fmt.Fprintln(s.out, protocol.Printable(raw))
}

func (s *Shell) seed(ctx context.Context, args []string) error {
	dir := s.sampleDir
	if len(args) > 0 {
		dir = args[0]
	}
	imported, err := s.node.Seed(dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Imported %d RFC(s) from %s.\n", imported, dir)
	return s.node.Sync(ctx)
}

func (s *Shell) local() error {
	numbers, err := s.node.Store().List()
	if err != nil {
		return err
	}
	if len(numbers) == 0 {
		fmt.Fprintln(s.out, "No local RFCs.")
		return nil
	}
	for _, n := range numbers {
		fmt.Fprintf(s.out, "rfc_%d.txt\t%s\n", n, s.node.Store().Title(n))
	}
	return nil
}

func parseNumber(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid RFC number: %s", arg)
	}
	return n, nil
}

func (s *Shell) lookup(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: lookup <rfc_number> [title]")
	}
	n, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	resp, _, err := s.node.Lookup(ctx, n, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	s.printRaw("LOOKUP response:", resp.Raw)
	return nil
}

func (s *Shell) add(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errors.New(`usage: add <rfc_number> <file_path> "Title"`)
	}
	n, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	resp, err := s.node.AddLocal(ctx, n, strings.Join(args[2:], " "), args[1])
	if err != nil {
		return err
	}
	s.printRaw("ADD response:", resp.Raw)
	return nil
}

func (s *Shell) get(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: get <rfc_number> <host> <port>")
	}
	n, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(args[2])
	if err != nil {
		return errors.New("port must be an integer")
	}

	result, err := s.node.DownloadSpecific(ctx, n, args[1], port, "")
	if err != nil {
		fmt.Fprintf(s.out, "GET response: failed to download RFC %d from %s:%d: %v\n\n", n, args[1], port, err)
		return nil
	}
	s.printRaw("GET response from peer:", result.PeerRaw)
	s.printDownload(result)
	return nil
}

func (s *Shell) fetch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: fetch <rfc_number>")
	}
	n, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	_, locations, err := s.node.Lookup(ctx, n, "")
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		fmt.Fprintf(s.out, "No peers hold RFC %d.\n", n)
		return nil
	}
	result, err := s.node.DownloadFromPeers(ctx, n, locations)
	if err != nil {
		return err
	}
	s.printDownload(result)
	return nil
}

func (s *Shell) printDownload(result *peer.DownloadResult) {
	fmt.Fprintf(s.out, "\nSaved to %s\n", result.Path)
	switch {
	case result.AddResponse == nil:
	case result.AddResponse.StatusCode == protocol.StatusOK:
		fmt.Fprintln(s.out, "Server registration updated with downloaded RFC.")
	default:
		fmt.Fprintf(s.out, "Server registration failed: %d %s\n", result.AddResponse.StatusCode, result.AddResponse.Reason)
	}
	fmt.Fprintln(s.out)
}
