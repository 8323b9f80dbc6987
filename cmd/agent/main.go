package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ntegrals/openbrowser-sub001/internal/agent"
	"github.com/ntegrals/openbrowser-sub001/internal/catalog"
	"github.com/ntegrals/openbrowser-sub001/internal/config"
	"github.com/ntegrals/openbrowser-sub001/internal/model"
	"github.com/ntegrals/openbrowser-sub001/internal/pageanalyzer"
	"github.com/ntegrals/openbrowser-sub001/internal/promptbuilder"
	"github.com/ntegrals/openbrowser-sub001/internal/viewport"
)

type cliOptions struct {
	task        string
	configPath  string
	provider    string
	maxSteps    int
	temperature float64
	vision      bool
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()
	if opts.task == "" {
		task, cancelled, err := promptTask()
		if err != nil {
			log.Fatal().Err(err).Msg("prompt task failed")
		}
		if cancelled {
			fmt.Println("Cancelled.")
			return
		}
		opts.task = task
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	if opts.provider != "" {
		cfg.AgentProvider = opts.provider
	}
	if opts.maxSteps > 0 {
		cfg.AgentMaxSteps = opts.maxSteps
	}
	cfg.AgentTemperature = opts.temperature
	if opts.vision {
		cfg.AgentVision = true
	}

	llmClient, err := buildLanguageModel(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("model init")
	}

	profile := viewport.NewLaunchProfile().Automation().Headless(cfg.BrowserHeadless)
	if cfg.BrowserBinaryPath != "" {
		profile = profile.ExecutablePath(cfg.BrowserBinaryPath)
	}
	if cfg.BrowserUserDataDir != "" {
		profile = profile.UserDataDir(cfg.BrowserUserDataDir)
		if err := os.MkdirAll(cfg.BrowserUserDataDir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("user data dir init")
		}
	}
	if cfg.ProxyServer != "" {
		profile = profile.Proxy(cfg.ProxyServer, cfg.ProxyUsername, cfg.ProxyPassword)
	}
	if cfg.BrowserDisableSecurity {
		profile = profile.RelaxedSecurity()
	}

	vp, err := viewport.New(ctx, viewport.Config{
		Profile:     profile,
		PersistPath: profile.StateFilePath(),
	}, log.With().Str("comp", "viewport").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("viewport init")
	}
	defer vp.Close()

	analyzer := pageanalyzer.New(vp)

	cat, err := catalog.BuildDefault()
	if err != nil {
		log.Fatal().Err(err).Msg("catalog init")
	}

	ec := catalog.ExecutionContext{
		Page:         vp,
		Analyzer:     analyzer,
		ExtractionLM: agent.ExtractionAdapter{LLM: llmClient},
	}

	loop := agent.New(
		agent.Config{
			StepLimit:   cfg.AgentMaxSteps,
			Vision:      cfg.AgentVision,
			Temperature: cfg.AgentTemperature,
			OnStepStart: func(step int) {
				fmt.Printf("--- step %d ---\n", step)
			},
			OnStepEnd: func(step int, results []catalog.CommandResult) {
				for _, r := range results {
					if !r.Success {
						log.Warn().Int("step", step).Str("error", r.Error).Msg("action failed")
					}
				}
			},
		},
		llmClient,
		analyzer,
		cat,
		ec,
		tabListerAdapter{vp},
		vp,
		vp.CurrentURL,
		analyzer.CurrentViewportMetrics,
		log.With().Str("comp", "agent").Logger(),
	)

	fmt.Println("Starting task...")
	result := loop.Run(ctx, agent.Task{Description: opts.task})
	if !result.Success {
		for _, e := range result.Errors {
			log.Error().Err(e).Msg("run finished with error")
		}
		return
	}
	fmt.Printf("Done: %s\n", result.FinalResult)
}

// tabListerAdapter converts viewport.TabSummary into promptbuilder.TabInfo;
// the two shapes match field-for-field but are distinct named types.
type tabListerAdapter struct {
	vp *viewport.Viewport
}

func (a tabListerAdapter) ListTabs() []promptbuilder.TabInfo {
	summaries := a.vp.ListTabs()
	out := make([]promptbuilder.TabInfo, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, promptbuilder.TabInfo{ID: s.ID, URL: s.URL, Title: s.Title, Current: s.Current})
	}
	return out
}

func buildLanguageModel(cfg config.Resolved) (model.LanguageModel, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.AgentProvider))
	if provider == "" {
		provider = "anthropic"
		if os.Getenv("ANTHROPIC_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") != "" {
			provider = "openai"
		}
	}

	switch provider {
	case "openai":
		return model.NewOpenAIModel(model.OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  cfg.AgentModel,
		}, log.With().Str("comp", "model").Logger())
	default:
		return model.NewAnthropicModel(model.AnthropicConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  cfg.AgentModel,
		}, log.With().Str("comp", "model").Logger())
	}
}

func parseFlags() cliOptions {
	task := flag.String("task", "", "Task description")
	configPath := flag.String("config", config.DefaultConfigPath(), "Path to open-browser config.json")
	provider := flag.String("provider", "", "Model provider: anthropic or openai")
	maxSteps := flag.Int("max-steps", 0, "Max agent steps (0 = use config default)")
	temp := flag.Float64("temperature", 0, "LLM temperature")
	vision := flag.Bool("vision", false, "Force-enable vision (screenshot attachment)")
	flag.Parse()
	return cliOptions{
		task:        strings.TrimSpace(*task),
		configPath:  strings.TrimSpace(*configPath),
		provider:    strings.TrimSpace(*provider),
		maxSteps:    *maxSteps,
		temperature: *temp,
		vision:      *vision,
	}
}

func promptTask() (string, bool, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter task (leave empty to cancel): ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", true, nil
	}

	const maxTaskLength = 2000
	if len(line) > maxTaskLength {
		fmt.Printf("Task too long (max %d chars), truncated\n", maxTaskLength)
		line = line[:maxTaskLength]
	}

	var sanitized strings.Builder
	for _, r := range line {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			sanitized.WriteRune(r)
		}
	}

	return sanitized.String(), false, nil
}
