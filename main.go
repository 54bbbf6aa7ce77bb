package main

import (
	"fmt"
	"os"

	"github.com/karthikraju391/rag-chat-client/chatclient"
	"github.com/karthikraju391/rag-chat-client/config"
	"github.com/karthikraju391/rag-chat-client/conversation"
	"github.com/karthikraju391/rag-chat-client/health"
	"github.com/karthikraju391/rag-chat-client/logging"
	"github.com/karthikraju391/rag-chat-client/nats_service"
	"github.com/karthikraju391/rag-chat-client/session"
	"github.com/karthikraju391/rag-chat-client/transport"
	"github.com/karthikraju391/rag-chat-client/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "ragchat.yaml"

// cli holds flag values and what PersistentPreRunE builds from them.
type cli struct {
	configPath    string
	verbose       bool
	baseURL       string
	topK          int
	minSimilarity float64
	natsURL       string
	addr          string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "ragchat",
		Short: "Terminal and web client for a RAG chat service",
		Long: `ragchat talks to a Retrieval-Augmented-Generation chat service over
POST {base_url}/chat and watches GET {base_url}/health.

Run without arguments to start the interactive chat interface.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: c.runChat,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", defaultConfigPath, "YAML config file")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&c.baseURL, "base-url", config.DefaultBaseURL, "base URL of the chat service")
	pf.IntVar(&c.topK, "top-k", config.DefaultTopK, "number of sources to retrieve")
	pf.Float64Var(&c.minSimilarity, "min-similarity", config.DefaultMinSimilarity, "relevance threshold between 0 and 1")
	pf.StringVar(&c.natsURL, "nats-url", "", "mirror conversations to this NATS server")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat (the default command)",
		Long: `Starts the terminal UI. When stdin is not a terminal, questions are read
one per line and answers are written to stdout.

Commands: /clear, /sources N, /topk N, /similarity X, /help, /quit`,
		Args: cobra.NoArgs,
		RunE: c.runChat,
	}

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and print the answer with its sources",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.runAsk,
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the chat service once; exits non-zero when it is down",
		Args:  cobra.NoArgs,
		RunE:  c.runHealth,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve conversations over REST and websocket",
		Long: `Starts a local server exposing conversations:

  GET    /api/health
  GET    /api/conversations/:id
  POST   /api/conversations/:id/messages          {"query": "..."}
  POST   /api/conversations/:id/messages/:index/toggle
  PUT    /api/conversations/:id/settings          {"top_k": 5, "min_similarity": 0.05}
  DELETE /api/conversations/:id
  GET    /chat/:id                                 websocket
  GET    /metrics`,
		Args: cobra.NoArgs,
		RunE: c.runServe,
	}
	serveCmd.Flags().StringVar(&c.addr, "addr", config.DefaultServerAddr, "listen address")

	watchCmd := &cobra.Command{
		Use:   "watch [conversation-id]",
		Short: "Print the events of a conversation mirrored to NATS",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runWatch,
	}

	root.AddCommand(chatCmd, askCmd, healthCmd, serveCmd, watchCmd)
	return root
}

// setup loads the config, applies flags and builds the logger.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	c.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	// the terminal UI owns stdout and stderr
	interactive := (cmd.Name() == "chat" || cmd == cmd.Root()) && tui.IsTerminal(os.Stdin)
	c.logger, err = logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Verbose: c.verbose,
		Quiet:   interactive,
	})
	return err
}

// applyFlags overrides cfg with flags set on the command line.
func (c *cli) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = c.baseURL
	}
	if flags.Changed("top-k") {
		cfg.Chat.TopK = c.topK
	}
	if flags.Changed("min-similarity") {
		cfg.Chat.MinSimilarity = c.minSimilarity
	}
	if flags.Changed("nats-url") {
		cfg.Nats.URL = c.natsURL
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		cfg.Server.Addr = c.addr
	}
	if c.verbose {
		cfg.Log.Level = "debug"
	}
}

// core is the wiring shared by every front end: one health monitor and one
// chat client, each with its own connection pool.
type core struct {
	cfg     *config.Config
	log     *zap.Logger
	monitor *health.Monitor
	client  *chatclient.Client
}

func newCore(cfg *config.Config, log *zap.Logger) *core {
	return &core{
		cfg: cfg,
		log: log,
		monitor: health.NewMonitor(health.Options{
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Health.Timeout,
			Interval:   cfg.Health.Interval,
			HTTPClient: transport.NewProbe(),
			Logger:     log,
		}),
		client: chatclient.New(chatclient.Options{
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Chat.Timeout,
			HTTPClient: transport.New(),
			Logger:     log,
		}),
	}
}

func (k *core) newSession(conversationID string) *session.Session {
	settings := session.Settings{TopK: k.cfg.Chat.TopK, MinSimilarity: k.cfg.Chat.MinSimilarity}
	return session.New(k.client, k.monitor, conversation.NewStore(conversationID), settings, k.log)
}

// openMirror connects the transcript mirror when nats.url is set. The
// returned close function is always safe to call.
func openMirror(cfg *config.Config, log *zap.Logger) (*nats_service.Mirror, func(), error) {
	if cfg.Nats.URL == "" {
		return nil, func() {}, nil
	}
	svc, err := nats_service.NewNatsService(cfg.Nats, log)
	if err != nil {
		return nil, nil, err
	}
	mirror := nats_service.NewMirror(svc, log)
	return mirror, func() {
		mirror.Close()
		svc.Close()
	}, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
