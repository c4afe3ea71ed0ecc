// guildbot is the guild's resident bot. It answers mentions, turns code
// requests into reviewed sandboxed Go programs, tracks commit streaks,
// welcomes new members, and keeps scheduled posts fresh.
//
// Usage:
//
//	guildbot -workdir /srv/guildbot          # run the bot
//	guildbot -setup-secrets                  # create the encrypted secrets file
//	guildbot -version                        # print build info
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"guildbot/pkg/codemode"
	"guildbot/pkg/config"
	"guildbot/pkg/llm/factory"
	"guildbot/pkg/logx"
	"guildbot/pkg/metrics"
	"guildbot/pkg/persistence"
	"guildbot/pkg/platform"
	"guildbot/pkg/router"
	"guildbot/pkg/sandbox"
	"guildbot/pkg/sched"
	"guildbot/pkg/streak"
	"guildbot/pkg/tools"
	"guildbot/pkg/version"
	"guildbot/pkg/welcome"

	// Profile timezones must resolve even on hosts without a zoneinfo
	// database (alpine, scratch images).
	_ "time/tzdata"
)

// botUserWait bounds how long startup waits for the gateway READY event
// when platform.bot_user_id is not configured.
const botUserWait = 15 * time.Second

func main() {
	var (
		workDir      string
		showVersion  bool
		setupSecrets bool
		debug        bool
	)
	flag.StringVar(&workDir, "workdir", "", "working directory holding guildbot.yaml and .guildbot/ (default: current directory)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.BoolVar(&setupSecrets, "setup-secrets", false, "interactively create the encrypted secrets file and exit")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("guildbot %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		return
	}

	if debug {
		logx.SetDebug(true)
	}

	logger := logx.NewLogger("main")

	if workDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			logger.Error("Failed to determine working directory: %v", err)
			os.Exit(1)
		}
		workDir = cwd
	}

	if setupSecrets {
		if err := runSecretsSetup(workDir); err != nil {
			logger.Error("Secrets setup failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(workDir, logger); err != nil {
		logger.Error("💀 guildbot exited: %v", err)
		os.Exit(1)
	}
}

//nolint:cyclop // Linear startup wiring; splitting it would obscure the order.
func run(workDir string, logger *logx.Logger) error {
	if err := unlockSecrets(workDir); err != nil {
		return fmt.Errorf("failed to unlock secrets: %w", err)
	}

	if err := config.LoadConfig(workDir); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	token, err := config.GetBotToken()
	if err != nil {
		return err
	}

	if err := persistence.Initialize(config.DatabasePath()); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := persistence.Close(); err != nil {
			logger.Warn("Failed to close database: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.NewServer().StartServer(ctx, cfg.Metrics.Port)
	}

	client := platform.NewClient(cfg.Platform.APIBaseURL, token)
	session := platform.NewSession(cfg.Platform.GatewayURL, token)
	if err := session.Open(ctx); err != nil {
		return fmt.Errorf("failed to open gateway session: %w", err)
	}
	defer session.Close()

	botUserID, err := resolveBotUserID(cfg.Platform.BotUserID, session)
	if err != nil {
		return err
	}

	clients := factory.NewClientFactory()

	chatClient, err := clients.CreateClient(cfg.Chat.Model, "chat")
	if err != nil {
		return fmt.Errorf("failed to create chat client: %w", err)
	}

	// Streak tracking persists regardless of the enabled flag so the
	// !streak command can always read history; the message handler that
	// records new days is only registered when tracking is on.
	tracker := streak.NewTracker(client, persistence.Profiles(), persistence.Streaks(), cfg.Streaks.CommitsChannel)
	if cfg.Streaks.Enabled {
		session.AddHandler(tracker.HandleMessage)
	}

	var usage *metrics.QueryService
	if cfg.Metrics.PrometheusURL != "" {
		usage, err = metrics.NewQueryService(cfg.Metrics.PrometheusURL)
		if err != nil {
			logger.Warn("⚠️ Usage reporting disabled: %v", err)
			usage = nil
		}
	}

	routerCfg := router.Config{
		Client:         client,
		Chat:           chatClient,
		Tracker:        tracker,
		Profiles:       persistence.Profiles(),
		Usage:          usage,
		BotUserID:      botUserID,
		CodeModeConfig: cfg.CodeMode,
		ChatConfig:     cfg.Chat,
	}

	if cfg.CodeMode.Enabled {
		orch, err := buildOrchestrator(cfg, client, session, clients)
		if err != nil {
			return err
		}
		routerCfg.CodeMode = orch
	}

	rt := router.New(routerCfg)
	session.AddHandler(rt.HandleMessage)

	welcomer := welcome.New(client, cfg.Welcome)
	if cfg.Welcome.Enabled {
		session.AddHandler(welcomer.HandleMemberAdd)
		if len(cfg.Welcome.ShowcaseChannels) > 0 {
			session.AddHandler(welcomer.HandleMessage)
		}
	}

	scheduler := sched.New()
	if cfg.Streaks.Enabled && cfg.Streaks.DigestCron != "" {
		digestChannel := cfg.Streaks.DigestChannel
		err := scheduler.Add("streak-digest", cfg.Streaks.DigestCron, func(ctx context.Context) {
			if err := tracker.PostDigest(ctx, digestChannel); err != nil {
				logger.Error("Streak digest failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule streak digest: %w", err)
		}
	}
	if cfg.Welcome.Enabled && cfg.Welcome.EvergreenChannel != "" && cfg.Welcome.EvergreenCron != "" {
		err := scheduler.Add("evergreen-repost", cfg.Welcome.EvergreenCron, func(ctx context.Context) {
			if err := welcomer.RepostEvergreen(ctx); err != nil {
				logger.Error("Evergreen repost failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule evergreen repost: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logger.Info("🤖 guildbot %s is up (guild %s, code mode %s)",
		version.Version, cfg.Platform.GuildID, onOff(cfg.CodeMode.Enabled))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("🛑 Received %v, shutting down", sig)

	// Deferred teardown runs in reverse order: scheduler, session, database.
	return nil
}

// buildOrchestrator assembles the code-mode pipeline: classifier, generator
// with guild tools, sandboxed executor, and summarizer.
func buildOrchestrator(cfg config.Config, client *platform.Client, session *platform.Session, clients *factory.ClientFactory) (*codemode.Orchestrator, error) {
	classifierClient, err := clients.CreateClient(cfg.CodeMode.ClassifierModel, "classifier")
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier client: %w", err)
	}
	generatorClient, err := clients.CreateClient(cfg.CodeMode.GeneratorModel, "generator")
	if err != nil {
		return nil, fmt.Errorf("failed to create generator client: %w", err)
	}
	summarizerClient, err := clients.CreateClient(cfg.CodeMode.SummarizerModel, "summarizer")
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer client: %w", err)
	}

	provider := tools.NewProvider(tools.GuildContext{
		Client:  client,
		GuildID: cfg.Platform.GuildID,
	}, tools.AllToolNames())

	var (
		runner  sandbox.Runner
		limits  *sandbox.ResourceLimits
		network = "none"
	)
	if cfg.CodeMode.Docker.Enabled {
		docker := sandbox.NewDockerRunner(cfg.CodeMode.Docker.Image)
		if !docker.Available() {
			return nil, fmt.Errorf("docker sandbox is enabled but no container runtime is available: start docker or set codemode.docker.enabled to false")
		}
		runner = docker
		limits = &sandbox.ResourceLimits{
			CPUs:   cfg.CodeMode.Docker.CPUs,
			Memory: cfg.CodeMode.Docker.Memory,
			PIDs:   cfg.CodeMode.Docker.PIDs,
		}
		network = cfg.CodeMode.Docker.Network
	} else {
		runner = sandbox.NewLocalRunner()
	}

	executor := codemode.NewExecutor(runner,
		time.Duration(cfg.CodeMode.SandboxTimeoutSec)*time.Second, limits, network)

	sandboxToken, err := config.GetSandboxToken()
	if err != nil {
		return nil, err
	}

	return codemode.NewOrchestrator(&codemode.OrchestratorConfig{
		Client:          client,
		Events:          session,
		Classifier:      codemode.NewClassifier(classifierClient),
		Generator:       codemode.NewGenerator(generatorClient, provider, cfg.CodeMode.MaxGenerationSteps),
		Executor:        executor,
		Summarizer:      codemode.NewSummarizer(summarizerClient),
		APIBaseURL:      cfg.Platform.APIBaseURL,
		SandboxToken:    sandboxToken,
		GuildID:         cfg.Platform.GuildID,
		ApprovalTimeout: time.Duration(cfg.CodeMode.ApprovalTimeoutSec) * time.Second,
	}), nil
}

// resolveBotUserID returns the configured bot user id, or waits for the
// gateway READY event to learn it. Mention detection needs it before the
// first message arrives.
func resolveBotUserID(configured string, session *platform.Session) (string, error) {
	if configured != "" {
		return configured, nil
	}
	deadline := time.Now().Add(botUserWait)
	for time.Now().Before(deadline) {
		if user := session.BotUser(); user != nil {
			return user.ID, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return "", fmt.Errorf("gateway did not report a bot user within %s: set platform.bot_user_id", botUserWait)
}

// unlockSecrets decrypts the secrets file when one exists. The password comes
// from GUILDBOT_SECRETS_PASSWORD or an interactive prompt. Without a secrets
// file, credentials come from the environment.
func unlockSecrets(workDir string) error {
	if !config.SecretsFileExists(workDir) {
		return nil
	}

	password := os.Getenv(envSecretsPassword)
	if password == "" {
		fmt.Print("Enter secrets password: ")
		raw, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
		for i := range raw {
			raw[i] = 0
		}
	}

	secrets, err := config.DecryptSecretsFile(workDir, password)
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
