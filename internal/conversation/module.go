// Package conversation provides the conversation engine domain module.
package conversation

import (
	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/internal/conversation/engine"
	"dealerline_backend/internal/conversation/handler"
	"dealerline_backend/internal/conversation/metricsagg"
	"dealerline_backend/internal/conversation/ports"
	"dealerline_backend/internal/conversation/repository"
	"dealerline_backend/internal/events"
	apphttp "dealerline_backend/internal/http"
	"dealerline_backend/platform/config"
	"dealerline_backend/platform/logger"
	"dealerline_backend/platform/validator"
)

// Module represents the conversation domain module.
type Module struct {
	handler   *handler.Handler
	processor *engine.Processor
	starter   *engine.Starter
	repo      *repository.Repository
}

// NewModule creates a conversation module with all dependencies wired. The
// AI backend, prompt selector, turn scheduler, and aggregation components are
// built by the composition root because they own external connections.
func NewModule(
	repo *repository.Repository,
	eventBus events.Bus,
	val *validator.Validator,
	ai ports.AIBackend,
	prompts ports.PromptSelector,
	sched engine.TurnScheduler,
	agg *metricsagg.Aggregator,
	monitor *metricsagg.Monitor,
	cfg config.EngineConfig,
	log *logger.Logger,
) *Module {
	rules := domain.Rules{
		HighValuePrice:      cfg.GetHighValuePrice(),
		EngagementThreshold: cfg.GetEngagementThreshold(),
		DefaultModel:        cfg.GetDefaultModel(),
		HighCapabilityModel: cfg.GetHighCapabilityModel(),
		AdaptiveMode:        cfg.GetAdaptiveMode(),
		MaxTurnsCap:         cfg.GetMaxTurnsCap(),
	}

	processor := engine.NewProcessor(repo, ai, prompts, sched, eventBus, agg, log, cfg.GetAdaptiveMode())
	starter := engine.NewStarter(repo, sched, eventBus, agg, val, log, rules)
	h := handler.New(repo, agg, monitor, starter)

	return &Module{
		handler:   h,
		processor: processor,
		starter:   starter,
		repo:      repo,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "conversations"
}

// Processor returns the turn processor for the queue worker.
func (m *Module) Processor() *engine.Processor {
	return m.processor
}

// Starter returns the conversation starter for the stream consumer.
func (m *Module) Starter() *engine.Starter {
	return m.starter
}

// Repository returns the repository for supporting components.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/conversations"))
	m.handler.RegisterOpsRoutes(ctx.Protected)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
