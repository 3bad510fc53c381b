package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/skillcheck/session-engine/internal/events"
	"github.com/skillcheck/session-engine/internal/gateway"
	"github.com/skillcheck/session-engine/internal/store"
	"github.com/skillcheck/session-engine/internal/validator"
)

// Engine is the entry point of the session core: it builds and tracks
// one Orchestrator per live session and shares the completion
// coordinator and recovery scanner across them.
type Engine struct {
	gw        gateway.SessionGateway
	store     store.ProgressStore
	completer *CompletionCoordinator
	scanner   *RecoveryScanner
	exporter  *ResultExportService
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator

	mu       sync.Mutex
	sessions map[string]*Orchestrator
}

func NewEngine(
	gw gateway.SessionGateway,
	progressStore store.ProgressStore,
	publisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
) *Engine {
	return &Engine{
		gw:        gw,
		store:     progressStore,
		completer: NewCompletionCoordinator(gw, progressStore, publisher, logger),
		scanner:   NewRecoveryScanner(gw, progressStore, publisher, logger),
		exporter:  NewResultExportService(logger),
		publisher: publisher,
		logger:    logger,
		validator: v,
		sessions:  make(map[string]*Orchestrator),
	}
}

// StartSession starts a fresh attempt and returns its orchestrator.
func (e *Engine) StartSession(ctx context.Context, req *StartSessionRequest) (*Orchestrator, error) {
	orch := NewOrchestrator(e.gw, e.store, e.completer, e.publisher, e.logger, e.validator)
	if err := orch.StartNew(ctx, req); err != nil {
		return nil, err
	}
	e.register(orch)
	return orch, nil
}

// ResumeSession loads an unfinished attempt and returns its orchestrator.
func (e *Engine) ResumeSession(ctx context.Context, sessionID string) (*Orchestrator, error) {
	if orch, err := e.Session(sessionID); err == nil {
		return orch, nil
	}

	orch := NewOrchestrator(e.gw, e.store, e.completer, e.publisher, e.logger, e.validator)
	if err := orch.Resume(ctx, sessionID); err != nil {
		return nil, err
	}
	e.register(orch)
	return orch, nil
}

// Session returns the orchestrator for a live session.
func (e *Engine) Session(sessionID string) (*Orchestrator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	orch, ok := e.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return orch, nil
}

// Scanner returns the recovery scanner.
func (e *Engine) Scanner() *RecoveryScanner { return e.scanner }

// Exporter returns the result export service.
func (e *Engine) Exporter() *ResultExportService { return e.exporter }

func (e *Engine) register(orch *Orchestrator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[orch.Session().ID] = orch
}
