package command

import (
	"context"
	"fmt"

	"github.com/adamavenir/chatsync/internal/authors"
	"github.com/adamavenir/chatsync/internal/livesync"
	"github.com/adamavenir/chatsync/internal/transport"
	"github.com/adamavenir/chatsync/internal/types"
)

// syncOptions are the command-level knobs for a coordinator.
type syncOptions struct {
	ConversationID string
	ForcePoll      bool
	Observer       livesync.Observer
	OnChange       func(livesync.View)
	OnError        func(error)
	OnMessage      func(types.Message)
}

// newCoordinator wires the API client, both transports and the author
// cache into a coordinator and returns it unstarted with the signed-in
// user.
func newCoordinator(parent context.Context, ctx *CommandContext, opts syncOptions) (*livesync.Coordinator, types.Author) {
	conn, err := ctx.DB()
	if err != nil {
		fmt.Fprintf(ctx.stderr, "Warning: local cache unavailable, author names will not persist: %v\n", err)
		conn = nil
	}
	names := authors.New(ctx.API, conn)
	self := ctx.Self(parent)
	primeAuthors(ctx, names, self)

	logger := ctx.Logger()
	pushBase := ctx.Config.WSURL
	if pushBase == "" {
		pushBase = ctx.API.BaseURL()
	}

	cfg := livesync.DefaultConfig()
	cfg.ConversationID = opts.ConversationID
	cfg.API = ctx.API
	cfg.NewPush = func() transport.Transport {
		return transport.NewPush(transport.PushConfig{BaseURL: pushBase, Logger: logger})
	}
	cfg.NewPoll = func() transport.Transport {
		return transport.NewPoll(transport.PollConfig{Lister: ctx.API, Logger: logger})
	}
	cfg.Credentials = ctx.Tokens.Credentials
	cfg.Names = names
	cfg.Observer = opts.Observer
	cfg.Self = self
	cfg.ForcePoll = opts.ForcePoll || ctx.Config.ForcePoll
	cfg.OnChange = opts.OnChange
	cfg.OnError = opts.OnError
	cfg.OnMessage = opts.OnMessage
	cfg.Logger = logger
	cfg.Debug = ctx.Debug

	return livesync.New(cfg), self
}

// primeAuthors loads cached names and records the signed-in user. Cache
// failures only cost persistence and are reported in debug mode.
func primeAuthors(ctx *CommandContext, names *authors.Cache, self types.Author) {
	if err := names.Warm(); err != nil && ctx.Debug {
		fmt.Fprintf(ctx.stderr, "[command] author cache warm failed: %v\n", err)
	}
	if err := names.Remember(self); err != nil && ctx.Debug {
		fmt.Fprintf(ctx.stderr, "[command] author cache write failed: %v\n", err)
	}
}
