// Command chat is a terminal client for the watercooler chat server. It keeps
// one persistent WebSocket connection, drives the session state machine from
// a single dispatch loop, and renders into stdout. Lines typed on stdin are
// the user actions: the nickname while the identity prompt is up, chat
// messages afterwards.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/watercooler/chat-widget/internal/metrics"
	"github.com/watercooler/chat-widget/internal/session"
	"github.com/watercooler/chat-widget/internal/transport"
	"github.com/watercooler/chat-widget/internal/view"
)

// Config defines the client environment variables. Flags override them.
type Config struct {
	ServerURL   string `env:"CHAT_SERVER_URL,default=ws://localhost:7070/ws"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Terminal client for the watercooler chat server",
	RunE:  runChat,
}

var (
	flagServerURL   string
	flagLogLevel    string
	flagMetricsAddr string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServerURL, "server-url", "", "chat server WebSocket URL (overrides CHAT_SERVER_URL)")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flags.StringVar(&flagMetricsAddr, "metrics-addr", "", "listen address for the Prometheus endpoint (overrides METRICS_ADDR)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if flagServerURL != "" {
		cfg.ServerURL = flagServerURL
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagMetricsAddr != "" {
		cfg.MetricsAddr = flagMetricsAddr
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("config: invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		defer srv.Close()
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn().Err(err).Msg("metrics endpoint stopped")
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint up")
	}

	// No connect timeout and no reconnect: the session lives and dies with
	// this one connection.
	conn, err := transport.Dial(ctx, cfg.ServerURL, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := session.New(view.NewTerminal(os.Stdout), conn, logger)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	// Single dispatch loop: socket events and user input are serialized here,
	// so the session never sees concurrent callbacks.
	for {
		select {
		case <-ctx.Done():
			sess.Teardown()
			return conn.Close()

		case ev, ok := <-conn.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case transport.KindOpen:
				sess.HandleOpen()
			case transport.KindFrame:
				sess.HandleFrame(ev.Frame)
			case transport.KindClosed:
				if ev.Err != nil {
					sess.HandleTransportError(ev.Err)
				}
				sess.HandleClose(ev.Err)
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				// stdin is gone; leave the same way a closed tab would.
				sess.Teardown()
				return conn.Close()
			}
			handleLine(sess, line, logger)
		}
	}
}

// handleLine routes one line of input according to the session state: the
// nickname while awaiting identity, a chat message while in chat.
func handleLine(sess *session.Session, line string, logger zerolog.Logger) {
	switch sess.State() {
	case session.StateAwaitingIdentity:
		// New input counts as editing the identity field, which clears the
		// collision overlay before the submit.
		sess.IdentityEdited()
		if err := sess.SubmitIdentity(strings.TrimSpace(line)); err != nil {
			logger.Warn().Err(err).Msg("identity not submitted")
		}
	case session.StateInChat:
		if err := sess.SubmitMessage(line); err != nil {
			logger.Warn().Err(err).Msg("message not sent")
		}
	default:
		logger.Debug().Stringer("state", sess.State()).Msg("input ignored")
	}
}
