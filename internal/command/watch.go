package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/chat"
	"github.com/adamavenir/chatsync/internal/core"
	"github.com/adamavenir/chatsync/internal/livesync"
	"github.com/adamavenir/chatsync/internal/metrics"
	"github.com/adamavenir/chatsync/internal/render"
	"github.com/adamavenir/chatsync/internal/types"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [conversation]",
		Short: "Stream a conversation in real-time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			conversationID, err := ctx.ConversationFrom(args)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			last, _ := cmd.Flags().GetInt("last")
			forcePoll, _ := cmd.Flags().GetBool("poll")
			notify, _ := cmd.Flags().GetBool("notify")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			recorder := metrics.New()
			if metricsAddr != "" {
				server := serveMetrics(metricsAddr, recorder, cmd.ErrOrStderr())
				defer shutdownServer(server)
			}

			printer := newWatchPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), ctx.JSONMode, last)
			coord, _ := newCoordinator(runCtx, ctx, syncOptions{
				ConversationID: conversationID,
				ForcePoll:      forcePoll,
				Observer:       recorder,
				OnChange:       printer.Update,
				OnError: func(err error) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				},
				OnMessage: func(m types.Message) {
					if notify {
						go func() { _ = chat.SendNotification(m, conversationID) }()
					}
				},
			})

			if ctx.Tokens.Path() != "" {
				ctx.Tokens.OnChange = func(string) {
					if coord.View().State == types.ConnDegradedPolling {
						_ = coord.RetryPush()
					}
				}
				if err := ctx.Tokens.Watch(runCtx); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: not watching token file: %v\n", err)
				}
			}

			if !ctx.JSONMode {
				fmt.Fprintf(cmd.OutOrStdout(), "--- watching #%s (Ctrl+C to stop) ---\n", conversationID)
			}
			if err := coord.Start(runCtx); err != nil {
				return writeCommandError(cmd, err)
			}
			<-runCtx.Done()
			view := coord.View()
			coord.Stop()

			return saveCursor(conversationID, view.LastSeenID)
		},
	}

	cmd.Flags().Int("last", 10, "show last N messages when the conversation loads")
	cmd.Flags().Bool("poll", false, "poll instead of opening a socket")
	cmd.Flags().Bool("notify", false, "show a desktop notification for messages from others")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	return cmd
}

func saveCursor(conversationID, lastSeenID string) error {
	state, err := core.LoadState()
	if err != nil {
		return err
	}
	if !state.Advance(conversationID, lastSeenID) {
		return nil
	}
	return core.SaveState(state)
}

func serveMetrics(addr string, recorder *metrics.Recorder, stderr io.Writer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "Warning: metrics server: %v\n", err)
		}
	}()
	return server
}

func shutdownServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

type printedMessage struct {
	body    string
	edited  bool
	deleted bool
}

// watchPrinter turns successive views into an append-only stream. Only
// confirmed messages are printed; later edits and deletions of printed
// messages are reported as follow-up lines.
type watchPrinter struct {
	out      io.Writer
	status   io.Writer
	jsonMode bool
	last     int

	mu      sync.Mutex
	loaded  bool
	printed map[string]printedMessage
	state   types.ConnState
	banner  string
}

func newWatchPrinter(out, status io.Writer, jsonMode bool, last int) *watchPrinter {
	return &watchPrinter{
		out:      out,
		status:   status,
		jsonMode: jsonMode,
		last:     last,
		printed:  make(map[string]printedMessage),
		state:    types.ConnDisconnected,
	}
}

// Update prints whatever changed since the previous view.
func (p *watchPrinter) Update(view livesync.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if view.State != p.state {
		p.state = view.State
		label := render.StateLabel(view)
		if !p.jsonMode {
			fmt.Fprintf(p.status, "[%s]\n", label)
		}
	}
	if view.Banner.Text != p.banner {
		p.banner = view.Banner.Text
		if p.banner != "" && !p.jsonMode {
			fmt.Fprintf(p.status, "! %s\n", p.banner)
		}
	}

	if !view.Loaded {
		return
	}

	confirmed := make([]types.Message, 0, len(view.Messages))
	for _, m := range view.Messages {
		if !m.IsTemporary() {
			confirmed = append(confirmed, m)
		}
	}

	if !p.loaded {
		p.loaded = true
		skip := 0
		if p.last >= 0 && len(confirmed) > p.last {
			skip = len(confirmed) - p.last
		}
		for i, m := range confirmed {
			p.printed[m.ID] = snapshotOf(m)
			if i >= skip {
				p.printMessage(m)
			}
		}
		return
	}

	for _, m := range confirmed {
		prev, seen := p.printed[m.ID]
		if !seen {
			p.printed[m.ID] = snapshotOf(m)
			if !m.Deleted {
				p.printMessage(m)
			}
			continue
		}
		next := snapshotOf(m)
		if next == prev {
			continue
		}
		p.printed[m.ID] = next
		p.printMessage(m)
	}
}

func snapshotOf(m types.Message) printedMessage {
	return printedMessage{body: m.Body, edited: m.Edited(), deleted: m.Deleted}
}

func (p *watchPrinter) printMessage(m types.Message) {
	if p.jsonMode {
		_ = writeJSON(p.out, messagePayload(m))
		return
	}
	item := render.ItemFor(m, "", time.Now())
	fmt.Fprintln(p.out, render.PlainLine(item))
}
