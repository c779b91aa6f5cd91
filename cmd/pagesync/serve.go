package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/agentworkforce/pagesync/internal/discovery"
	"github.com/agentworkforce/pagesync/internal/relay"
)

type serveOptions struct {
	addr            string
	echoSender      bool
	rateLimitMax    int
	rateLimitWindow time.Duration
	maxMessageBytes int64
	origins         []string
	redisURL        string
	redisChannel    string
	advertise       bool
	instance        string
}

func serveCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay that fans page changes out to every participant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", envOrDefault("PAGESYNC_ADDR", ":8080"), "listen address")
	flags.BoolVar(&opts.echoSender, "echo-sender", boolEnv("PAGESYNC_ECHO_SENDER", false), "also deliver each event back to its sender")
	flags.IntVar(&opts.rateLimitMax, "rate-limit-max", intEnv("PAGESYNC_RATE_LIMIT_MAX", 0), "events per client per window; 0 disables")
	flags.DurationVar(&opts.rateLimitWindow, "rate-limit-window", durationEnv("PAGESYNC_RATE_LIMIT_WINDOW", time.Second), "rate limit window")
	flags.Int64Var(&opts.maxMessageBytes, "max-message-bytes", int64Env("PAGESYNC_MAX_MESSAGE_BYTES", 1<<10), "largest accepted frame")
	flags.StringSliceVar(&opts.origins, "origin", splitList(os.Getenv("PAGESYNC_ORIGINS")), "allowed browser origin patterns; empty allows any")
	flags.StringVar(&opts.redisURL, "redis-url", envOrDefault("PAGESYNC_REDIS_URL", ""), "redis URL of the backplane shared by several relays")
	flags.StringVar(&opts.redisChannel, "redis-channel", envOrDefault("PAGESYNC_REDIS_CHANNEL", relay.DefaultBackplaneChannel), "backplane channel")
	flags.BoolVar(&opts.advertise, "advertise", boolEnv("PAGESYNC_ADVERTISE", false), "announce the relay over mDNS")
	flags.StringVar(&opts.instance, "instance", envOrDefault("PAGESYNC_INSTANCE", ""), "mDNS instance name")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	logger := log.Default()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var backplane relay.Backplane
	if opts.redisURL != "" {
		redisBackplane, err := relay.NewRedisBackplane(opts.redisURL, opts.redisChannel, logger)
		if err != nil {
			return fmt.Errorf("backplane: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisBackplane.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = redisBackplane.Close()
			return fmt.Errorf("backplane: %w", err)
		}
		defer redisBackplane.Close()
		backplane = redisBackplane
	}

	server := relay.NewServer(relay.ServerConfig{
		EchoSender:      opts.echoSender,
		RateLimitMax:    opts.rateLimitMax,
		RateLimitWindow: opts.rateLimitWindow,
		MaxMessageBytes: opts.maxMessageBytes,
		OriginPatterns:  opts.origins,
		Backplane:       backplane,
		Registry:        registry,
		Logger:          logger,
	})

	listener, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if opts.advertise {
		port := listener.Addr().(*net.TCPAddr).Port
		ad, err := discovery.Advertise(opts.instance, port, []string{"path=/ws", "version=" + version})
		if err != nil {
			log.Printf("mDNS advertisement failed: %v", err)
		} else {
			defer ad.Shutdown()
			log.Printf("advertising %s on port %d", discovery.ServiceType, port)
		}
	}

	go func() {
		if err := server.Run(ctx); err != nil {
			log.Printf("backplane stopped: %v", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	log.Printf("pagesync relay listening on %s (instance %s)", listener.Addr(), server.InstanceID())

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("pagesync relay stopping")
	server.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
