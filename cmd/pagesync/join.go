package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/pagesync/internal/discovery"
	"github.com/agentworkforce/pagesync/internal/pagesync"
	"github.com/agentworkforce/pagesync/internal/viewsync"
)

type joinOptions struct {
	relayURL        string
	document        string
	role            string
	profileDSN      string
	profileKey      string
	speechCmd       string
	discover        bool
	discoverTimeout time.Duration
	reconnectMax    time.Duration
}

func joinCmd() *cobra.Command {
	opts := joinOptions{}

	cmd := &cobra.Command{
		Use:   "join [document]",
		Short: "Open a document and join the reading session",
		Long: `Open a form-feed paginated text document (for example pdftotext output)
and join the session served by a relay. Commands are read from stdin; type
"help" for the list.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.document = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJoin(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.relayURL, "relay", envOrDefault("PAGESYNC_RELAY_URL", ""), "relay websocket URL")
	flags.StringVar(&opts.document, "document", envOrDefault("PAGESYNC_DOCUMENT", ""), "document to open")
	flags.StringVar(&opts.role, "role", envOrDefault("PAGESYNC_ROLE", "viewer"), "starting role: reader or viewer")
	flags.StringVar(&opts.profileDSN, "profile", envOrDefault("PAGESYNC_PROFILE_DSN", ".pagesync/profile.json"), "where the viewer page is remembered: a file path, or file://, bolt://, postgres://, memory:// DSN")
	flags.StringVar(&opts.profileKey, "profile-key", envOrDefault("PAGESYNC_PROFILE_KEY", pagesync.DefaultProfileKey), "profile slot for the viewer page")
	flags.StringVar(&opts.speechCmd, "speech-cmd", envOrDefault("PAGESYNC_SPEECH_CMD", ""), "text-to-speech command; prints text when empty")
	flags.BoolVar(&opts.discover, "discover", boolEnv("PAGESYNC_DISCOVER", false), "find a relay over mDNS when --relay is empty")
	flags.DurationVar(&opts.discoverTimeout, "discover-timeout", durationEnv("PAGESYNC_DISCOVER_TIMEOUT", 5*time.Second), "how long to browse for a relay")
	flags.DurationVar(&opts.reconnectMax, "reconnect-max", durationEnv("PAGESYNC_RECONNECT_MAX", 0), "give up after this long without a relay; 0 retries forever")

	return cmd
}

func runJoin(ctx context.Context, opts joinOptions, in io.Reader, out io.Writer) error {
	logger := log.Default()

	role, err := pagesync.ParseRole(opts.role)
	if err != nil {
		return err
	}
	relayURL, err := resolveRelayURL(ctx, opts)
	if err != nil {
		return err
	}

	backend, err := pagesync.BuildProfileStoreFromDSN(opts.profileDSN)
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	profile := pagesync.NewAsyncProfileStore(backend, logger)
	defer func() {
		if err := profile.Close(); err != nil {
			log.Printf("profile close: %v", err)
		}
	}()

	var speaker viewsync.Speaker
	if opts.speechCmd != "" {
		narrator, err := viewsync.NewCommandNarrator(opts.speechCmd, logger)
		if err != nil {
			return err
		}
		speaker = narrator
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := viewsync.NewLoop(0)
	transport := viewsync.NewWSTransport(viewsync.WSTransportOptions{
		URL:          relayURL,
		Dispatch:     loop.Post,
		ReconnectMax: opts.reconnectMax,
		Logger:       logger,
	})
	client, err := viewsync.NewClient(viewsync.ClientConfig{
		Loop:         loop,
		Transport:    transport,
		Role:         role,
		Profile:      profile,
		ProfileKey:   opts.profileKey,
		DocumentPath: opts.document,
		Output:       out,
		Speaker:      speaker,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	transportErr := make(chan error, 1)
	go func() {
		err := transport.Run(ctx)
		if err != nil {
			cancel()
		}
		transportErr <- err
	}()

	log.Printf("joined %s as %s", relayURL, role)
	if err := client.Run(ctx, in); err != nil {
		return err
	}
	cancel()
	return <-transportErr
}

func resolveRelayURL(ctx context.Context, opts joinOptions) (string, error) {
	if strings.TrimSpace(opts.relayURL) != "" {
		return normalizeRelayURL(opts.relayURL)
	}
	if !opts.discover {
		return "", fmt.Errorf("relay URL is required (--relay or PAGESYNC_RELAY_URL), or pass --discover")
	}
	browseCtx, cancel := context.WithTimeout(ctx, opts.discoverTimeout)
	defer cancel()
	found, err := discovery.Browse(browseCtx)
	if err != nil {
		return "", err
	}
	log.Printf("discovered relay %s", found)
	return found, nil
}

// normalizeRelayURL accepts host:port, http(s) and ws(s) forms and returns a
// websocket URL, defaulting the path to /ws.
func normalizeRelayURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid relay URL %q: %w", raw, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid relay URL %q: unsupported scheme %s", raw, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid relay URL %q: missing host", raw)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/ws"
	}
	return parsed.String(), nil
}
