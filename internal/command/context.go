package command

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamavenir/chatsync/internal/api"
	"github.com/adamavenir/chatsync/internal/core"
	"github.com/adamavenir/chatsync/internal/db"
	"github.com/adamavenir/chatsync/internal/session"
	"github.com/adamavenir/chatsync/internal/types"
)

const requestTimeout = 15 * time.Second

// CommandContext provides shared command resources.
type CommandContext struct {
	Config       core.Config
	JSONMode     bool
	Debug        bool
	Conversation string
	Tokens       *session.TokenFile
	API          *api.Client

	stderr io.Writer
	db     *sql.DB
}

// GetContext loads configuration and builds the API client. Flags override
// the environment, which overrides the config file.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	jsonMode, _ := cmd.Flags().GetBool("json")
	debug, _ := cmd.Flags().GetBool("debug")
	conversation, _ := cmd.Flags().GetString("in")
	apiURL, _ := cmd.Flags().GetString("api-url")
	tokenFile, _ := cmd.Flags().GetString("token-file")

	config, err := core.Load()
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		config.APIURL = apiURL
	}
	if tokenFile != "" {
		config.TokenFile = tokenFile
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var tokens *session.TokenFile
	switch {
	case config.TokenFile != "":
		tokens, err = session.Load(config.TokenFile)
		if err != nil {
			return nil, err
		}
		tokens.Debug = debug
	default:
		tokens = session.Static(config.Token)
	}

	client, err := api.NewClient(config.APIURL, tokens)
	if err != nil {
		return nil, err
	}

	if conversation == "" {
		conversation = config.DefaultConversation
	}

	return &CommandContext{
		Config:       config,
		JSONMode:     jsonMode,
		Debug:        debug,
		Conversation: strings.TrimSpace(conversation),
		Tokens:       tokens,
		API:          client,
		stderr:       cmd.ErrOrStderr(),
	}, nil
}

// ConversationFrom prefers a positional argument over --in.
func (c *CommandContext) ConversationFrom(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if c.Conversation == "" {
		return "", fmt.Errorf("no conversation given: pass one or use --in")
	}
	return c.Conversation, nil
}

// DB opens the local cache on first use.
func (c *CommandContext) DB() (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	path, err := c.Config.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	conn, err := db.OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	c.db = conn
	return conn, nil
}

// Close releases the database and stops token watching.
func (c *CommandContext) Close() {
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
	if c.Tokens != nil {
		_ = c.Tokens.Close()
	}
}

// Logger returns a stderr logger when --debug is set, nil otherwise.
func (c *CommandContext) Logger() *log.Logger {
	if !c.Debug {
		return nil
	}
	return log.New(c.stderr, "", log.LstdFlags)
}

// Self looks up the signed-in user. Failures leave the identity empty.
func (c *CommandContext) Self(ctx context.Context) types.Author {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	me, err := c.API.Me(reqCtx)
	if err != nil {
		if c.Debug {
			fmt.Fprintf(c.stderr, "[command] whoami failed: %v\n", err)
		}
		return types.Author{}
	}
	return me
}

func (c *CommandContext) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, requestTimeout)
}
