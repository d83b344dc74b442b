package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/luckygas/gasdesk/internal/bot"
	"github.com/luckygas/gasdesk/internal/bot/action"
	"github.com/luckygas/gasdesk/internal/bot/dialog"
	"github.com/luckygas/gasdesk/internal/bot/identity"
	"github.com/luckygas/gasdesk/internal/bot/intent"
	"github.com/luckygas/gasdesk/internal/bot/permission"
	"github.com/luckygas/gasdesk/internal/bot/reply"
	"github.com/luckygas/gasdesk/internal/bot/state"
	appconfig "github.com/luckygas/gasdesk/internal/config"
	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/internal/llm"
	"github.com/luckygas/gasdesk/internal/notify"
	"github.com/luckygas/gasdesk/internal/store"
	"github.com/luckygas/gasdesk/internal/transcript"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// PipelineDeps carries the infrastructure handles a pipeline is built on.
// DB, Pool and Sender are required; the rest degrade gracefully when absent.
type PipelineDeps struct {
	Config     *appconfig.Config
	Logger     *logging.Logger
	DB         *sql.DB
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	LLM        llm.Client
	StateStore state.Store
	Sender     bot.Sender
	Email      notify.EmailSender
}

// processedDeduper adapts the Postgres processed-events table to the
// pipeline's dedup contract.
type processedDeduper struct {
	store *events.ProcessedStore
}

func (d processedDeduper) AlreadyProcessed(ctx context.Context, channel, eventID string) (bool, error) {
	return d.store.AlreadyProcessed(ctx, events.Channel(channel), eventID)
}

func (d processedDeduper) MarkProcessed(ctx context.Context, channel, eventID string) error {
	_, err := d.store.MarkProcessed(ctx, events.Channel(channel), eventID)
	return err
}

// Bot bundles the assembled pipeline with the collaborators other parts
// of the process need handles to.
type Bot struct {
	Pipeline *bot.Pipeline
	Linker   *identity.Linker
}

// BuildBot assembles the full turn pipeline: dedup, permission tiers,
// identity linking, intent classification, dialog engine, action dispatch,
// reply composition, delivery and transcripts.
func BuildBot(deps PipelineDeps) (*Bot, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("bootstrap: database handle is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("bootstrap: pgx pool is required")
	}
	if deps.Sender == nil {
		return nil, fmt.Errorf("bootstrap: channel sender is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	st := store.New(deps.DB)

	var linkCache *identity.LinkCache
	if deps.Redis != nil {
		linkCache = identity.NewLinkCache(deps.Redis)
	}
	linker := identity.NewLinker(identity.NewPgBindingStore(deps.Pool), linkCache,
		logger.Component("identity").Logger, identity.WithDirectory(st))

	classifier := intent.NewClassifier(deps.LLM, ClassifierModelID(cfg),
		logger.Component("intent").Logger,
		intent.WithFallbackTimeout(cfg.ClassifierTimeout))

	escalator := notify.NewService(deps.Email, cfg.NotifyEmails, logger.Component("notify"))

	dispatcher := action.NewDispatcher(action.Deps{
		Orders:    st,
		Inventory: st,
		Checks:    st,
		Directory: st,
		Binder:    linker,
		Schedule:  st,
		Escalator: escalator,
		Audit:     st,
	}, logger.Component("action").Logger, action.WithTimeout(cfg.DispatchTimeout))

	engine := dialog.NewEngine(dispatcher, logger.Component("dialog").Logger,
		dialog.WithRepromptLimit(cfg.RepromptLimit))

	stateStore := deps.StateStore
	if stateStore == nil {
		stateStore = state.NewMemoryStore(state.WithTTL(cfg.ConversationTTL))
	}

	var transcripts bot.Transcript
	if deps.Redis != nil {
		transcripts = transcript.NewStore(deps.Redis, transcript.WithTTL(cfg.TranscriptTTL))
	} else {
		logger.Warn("no redis; transcripts disabled")
	}

	pipeline, err := bot.NewPipeline(bot.PipelineDeps{
		Dedup:      processedDeduper{store: events.NewProcessedStore(deps.Pool)},
		Tiers:      permission.NewResolver(cfg.AdminGroupIDs, cfg.EmployeeGroupIDs, cfg.AdminSenderIDs),
		Linker:     linker,
		Classifier: classifier,
		Store:      stateStore,
		Engine:     engine,
		Composer:   reply.NewComposer(),
		Sender:     deps.Sender,
		Transcript: transcripts,
	}, logger.Component("pipeline").Logger)
	if err != nil {
		return nil, err
	}
	return &Bot{Pipeline: pipeline, Linker: linker}, nil
}
