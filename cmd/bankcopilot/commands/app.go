package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hupe1980/bankcopilot"
	"github.com/hupe1980/bankcopilot/banking"
	"github.com/hupe1980/bankcopilot/chat"
	"github.com/hupe1980/bankcopilot/config"
	"github.com/hupe1980/bankcopilot/copilot"
	"github.com/hupe1980/bankcopilot/groupchat"
	"github.com/hupe1980/bankcopilot/logging"
	"github.com/hupe1980/bankcopilot/metrics"
	"github.com/hupe1980/bankcopilot/model"
	"github.com/hupe1980/bankcopilot/model/anthropic"
	"github.com/hupe1980/bankcopilot/model/ollama"
	"github.com/hupe1980/bankcopilot/model/openai"
	"github.com/hupe1980/bankcopilot/store/cosmos"
	"github.com/hupe1980/bankcopilot/store/memory"
	"github.com/hupe1980/bankcopilot/store/sqlite"
)

// App is the wired application.
type App struct {
	Config   *config.Config
	Logger   *logging.StructuredLogger
	Registry *prometheus.Registry
	Metrics  metrics.Recorder
	Store    bankcopilot.Store
	Bank     *banking.Service
	Chat     *chat.Service

	closers []func() error
}

// Close releases the store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	logger := logging.New(&logging.Config{
		Level:     logging.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		Output:    logOut,
		Component: "bankcopilot",
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheusRecorder(reg)

	llm, embedder, err := newModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: logger, Registry: reg, Metrics: rec}
	store, closer, err := newStore(ctx, cfg.Store, logger.WithComponent("store"))
	if err != nil {
		return nil, err
	}
	app.Store = store
	if closer != nil {
		app.closers = append(app.closers, closer)
	}

	bc, err := bankcopilot.New(llm, store, func(o *bankcopilot.Options) {
		o.Embedder = embedder
		o.MaxIterations = cfg.GroupChat.MaxIterations
		o.SelectionHistory = cfg.GroupChat.SelectionHistory
		o.TerminationHistory = cfg.GroupChat.TerminationHistory
		o.Logger = logger
		o.Metrics = rec
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Bank = bc.Bank
	app.Chat = bc.Chat
	return app, nil
}

// newModel returns the chat model and, for providers with an embeddings
// endpoint, the embedder used for offer search.
func newModel(cfg config.ModelConfig) (model.Model, model.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		var reqOpts []option.RequestOption
		if cfg.APIKey != "" {
			reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
		}
		if cfg.Endpoint != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(cfg.Endpoint))
		}
		m := openai.NewModel(reqOpts, openAIOptions(cfg))
		return m, m, nil
	case config.ProviderAzure:
		m, err := openai.NewAzureModel(cfg.Endpoint, cfg.APIVersion, cfg.APIKey, openAIOptions(cfg))
		if err != nil {
			return nil, nil, err
		}
		return m, m, nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
			if cfg.Name != "" {
				o.Model = sdkanthropic.Model(cfg.Name)
			}
		}), nil, nil
	case config.ProviderOllama:
		return ollama.NewModel(func(o *ollama.Options) {
			o.Host = cfg.Host
			o.Temperature = cfg.Temperature
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
		}), nil, nil
	case config.ProviderMock:
		m := model.NewMockModel("offline", config.ProviderMock)
		m.SetHandler(offlineAnswer)
		return m, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func openAIOptions(cfg config.ModelConfig) func(o *openai.Options) {
	return func(o *openai.Options) {
		o.Temperature = cfg.Temperature
		if cfg.Name != "" {
			o.Model = cfg.Name
		}
		if cfg.EmbeddingModel != "" {
			o.EmbeddingModel = cfg.EmbeddingModel
		}
	}
}

func newStore(ctx context.Context, cfg config.StoreConfig, logger logging.Logger) (bankcopilot.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil, nil
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.Path, func(o *sqlite.Options) { o.Logger = logger })
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendCosmos:
		s, err := cosmos.NewFromEndpoint(cfg.Cosmos.Endpoint, cfg.Cosmos.Key, func(o *cosmos.Options) {
			o.Database = cfg.Cosmos.Database
			o.Logger = logger
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store bankcopilot.Store %q", cfg.Backend)
	}
}

// offlineAnswer lets the mock provider drive a complete group chat turn:
// keyword routing for selection, a single turn per prompt and a canned reply.
func offlineAnswer(req model.Request) (model.Response, error) {
	last := ""
	if n := len(req.Contents); n > 0 {
		last = req.Contents[n-1].Text()
	}

	var out any
	switch {
	case req.ResponseFormat == nil:
		return model.TextResponse("Offline mode: no language model is configured, so I cannot answer " + fmt.Sprintf("%q", last) + " yet."), nil
	case req.ResponseFormat.Name == "termination_info":
		out = groupchat.TerminationInfo{ShouldContinue: false, Reason: "offline mode answers once"}
	default:
		out = groupchat.ContinuationInfo{AgentName: routeOffline(latestTurn(req.Instructions)), Reason: "keyword match"}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return model.Response{}, err
	}
	return model.TextResponse(string(raw)), nil
}

// latestTurn extracts the newest "sender: text" line of the selection prompt.
func latestTurn(prompt string) string {
	_, rest, ok := strings.Cut(prompt, "Conversation so far:")
	if !ok {
		return ""
	}
	rest, _, _ = strings.Cut(rest, "\n\nAnswer")
	rest = strings.TrimSpace(rest)
	if i := strings.LastIndexByte(rest, '\n'); i >= 0 {
		rest = rest[i+1:]
	}
	return rest
}

func routeOffline(text string) string {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "transaction"), strings.Contains(text, "transfer"):
		return copilot.Transactions.String()
	case strings.Contains(text, "offer"), strings.Contains(text, "loan"), strings.Contains(text, "open"):
		return copilot.Sales.String()
	default:
		return copilot.CustomerSupport.String()
	}
}
