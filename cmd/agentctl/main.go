// Command agentctl is the headless one-shot CLI of spec.md §6: load a
// config, run one conversation to its first halt, and exit with the
// matching code (0 finished, 2 stopped, 3 error, 4 configuration error,
// 130 interrupted). Grounded on cuemby-warren's cmd/warren/main.go
// (cobra root command, persistent flags, signal-driven shutdown) and
// telnet2-opencode's cmd/opencode/commands/run.go (load config, build
// collaborators, run one message, report the outcome) — translated
// from opencode's session/storage/provider triple onto this module's
// eventstream/runtime/controller stack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentrt/agentrt/agent"
	"github.com/agentrt/agentrt/config"
	"github.com/agentrt/agentrt/controller"
	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/eventstream/storeselect"
	"github.com/agentrt/agentrt/internal/idgen"
	"github.com/agentrt/agentrt/llm"
	"github.com/agentrt/agentrt/llm/anthropic"
	"github.com/agentrt/agentrt/llm/openai"
	"github.com/agentrt/agentrt/log"
	"github.com/agentrt/agentrt/runtime"
	containerrt "github.com/agentrt/agentrt/runtime/container"
	localrt "github.com/agentrt/agentrt/runtime/local"
	"github.com/agentrt/agentrt/security"
	"github.com/agentrt/agentrt/state"
	"github.com/agentrt/agentrt/trajectory"
)

// Exit codes per spec.md §6.
const (
	exitFinished           = 0
	exitStopped            = 2
	exitError              = 3
	exitConfigurationError = 4
	exitInterrupted        = 130
)

var (
	configPath    string
	workspaceRoot string
	userID        string
	sessionIDFlag string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfigurationError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "agentctl drives one autonomous coding-agent conversation headlessly",
}

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run one conversation to its first halting state",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	runCmd.Flags().StringVar(&workspaceRoot, "workspace", ".agentrt", "Root directory for the session's event store")
	runCmd.Flags().StringVar(&userID, "user", "cli", "User ID recorded against the conversation")
	runCmd.Flags().StringVar(&sessionIDFlag, "session-id", "", "Session ID to use (random UUID if empty)")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		reportAndExit(err, exitConfigurationError)
		return nil
	}

	message := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := run(ctx, *cfg, message)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
	}
	os.Exit(code)
	return nil
}

// run builds the same EventStream/Runtime/Agent/Controller quartet
// conversation.Manager.Create assembles for a service-hosted
// conversation, but inline, so replay_trajectory_path can be applied as
// the stream's initial prefix before Start runs the first iteration —
// a sequencing conversation.Manager's API does not expose.
func run(ctx context.Context, cfg config.Config, message string) (int, error) {
	sessionID := sessionIDFlag
	if sessionID == "" {
		sessionID = idgen.New()
	}

	store, err := storeselect.Open(cfg.Core.FileStore, storePath(cfg, sessionID))
	if err != nil {
		return exitConfigurationError, err
	}
	stream, err := eventstream.New(ctx, sessionID, store)
	if err != nil {
		return exitConfigurationError, err
	}
	defer stream.Close()

	if cfg.Core.ReplayTrajectoryPath != "" {
		if err := trajectory.Replay(ctx, stream, cfg.Core.ReplayTrajectoryPath); err != nil {
			return exitConfigurationError, fmt.Errorf("replay trajectory: %w", err)
		}
	}

	runtimes := runtime.NewRegistry()
	localrt.Register(runtimes)
	containerrt.Register(runtimes)

	rtCfg := runtime.Config{
		BaseImage:      cfg.Sandbox.BaseContainerImage,
		RuntimeImage:   cfg.Sandbox.RuntimeContainerImage,
		DefaultTimeout: time.Duration(cfg.Sandbox.Timeout) * time.Second,
		ExtraDeps:      cfg.Sandbox.RuntimeExtraDeps,
		StartupEnvVars: cfg.Sandbox.RuntimeStartupEnvVars,
		Platform:       cfg.Sandbox.Platform,
	}
	rt, err := runtimes.Create(cfg.Core.Runtime, rtCfg, sessionID, stream)
	if err != nil {
		return exitConfigurationError, err
	}

	ag, err := buildAgent(cfg)
	if err != nil {
		return exitConfigurationError, err
	}

	analyzer := buildAnalyzer(cfg)

	ctrl := controller.New(controller.Config{
		MaxIterations:       cfg.Core.MaxIterations,
		MaxBudget:           cfg.Core.MaxBudgetPerTask,
		ConfirmationEnabled: cfg.Security.ConfirmationMode,
	}, stream, rt, ag, analyzer, nil, nil)

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Start(ctx, message) }()

	select {
	case <-ctx.Done():
		_ = ctrl.Stop(context.Background())
		return exitInterrupted, nil
	case err := <-runErr:
		if err != nil {
			if _, ok := errs.AsConfigurationError(err); ok {
				return exitConfigurationError, err
			}
			return exitError, err
		}
	}

	if cfg.Core.SaveTrajectoryPath != "" {
		events, err := stream.GetEvents(ctx, 0, -1, nil)
		if err != nil {
			log.Errorf("agentctl: read trajectory events: %v", err)
		} else if err := trajectory.Save(cfg.Core.SaveTrajectoryPath, events); err != nil {
			log.Errorf("agentctl: save trajectory: %v", err)
		}
	}

	return exitCodeFor(ctrl.State().AgentState), nil
}

// storePath mirrors conversation.Manager's per-conversation embedded
// store layout (a dedicated directory/file under workspaceRoot keyed by
// session ID) for Local/SQLite/BBolt, but hands the shared networked
// backends (Redis, COS) cfg.Core.FileStorePath untouched, since those
// address one external resource regardless of session ID.
func storePath(cfg config.Config, sessionID string) string {
	root := workspaceRoot
	if cfg.Core.FileStorePath != "" {
		root = cfg.Core.FileStorePath
	}
	switch cfg.Core.FileStore {
	case storeselect.Redis, storeselect.COS:
		return cfg.Core.FileStorePath
	case storeselect.SQLite, storeselect.BBolt:
		return filepath.Join(root, sessionID+".db")
	default:
		return filepath.Join(root, sessionID)
	}
}

func exitCodeFor(st state.AgentState) int {
	switch st {
	case state.AgentStateFinished:
		return exitFinished
	case state.AgentStateStopped, state.AgentStateRejected:
		return exitStopped
	case state.AgentStateError:
		return exitError
	default:
		// Headless run left in a non-terminal state (e.g. awaiting
		// confirmation/input with nobody to answer it): treat the same
		// as a capped stop rather than hanging.
		return exitStopped
	}
}

// buildAgent selects the agent implementation by cfg.Core.DefaultAgent:
// "scripted" (or empty) is a deterministic stub useful for dry runs that
// runs `true` once and then finishes; "anthropic"/"openai" build a real
// LLM-backed agent.
func buildAgent(cfg config.Config) (controller.Agent, error) {
	switch cfg.Core.DefaultAgent {
	case "", "scripted":
		return agent.ShellEcho("true", "no llm provider configured")
	case "anthropic", "openai":
		registry := llm.NewRegistry()
		registry.Register("anthropic", func(c llm.Config) (llm.Client, error) { return anthropic.NewFromConfig(c) })
		registry.Register("openai", func(c llm.Config) (llm.Client, error) { return openai.NewFromConfig(c) })
		client, err := registry.Create(cfg.Core.DefaultAgent, llm.Config{
			Provider:     cfg.Core.DefaultAgent,
			APIKey:       cfg.LLM.APIKey,
			DefaultModel: cfg.LLM.Model,
			BaseURL:      cfg.LLM.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return agent.NewLLM(client, cfg.LLM.Model, ""), nil
	default:
		return nil, errs.NewConfigurationError("unknown default_agent "+cfg.Core.DefaultAgent, nil)
	}
}

// buildAnalyzer maps security.security_analyzer's one recognized tag
// onto security.DefaultAnalyzer; an empty tag disables analysis
// entirely, per spec.md §6 ("absent = none").
func buildAnalyzer(cfg config.Config) *security.Analyzer {
	if cfg.Security.SecurityAnalyzer == "" {
		return nil
	}
	return security.DefaultAnalyzer()
}

func reportAndExit(err error, code int) {
	fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
	os.Exit(code)
}
