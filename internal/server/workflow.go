package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"credvault/internal/auth"
	"credvault/internal/metrics"
	"credvault/internal/models"
	"credvault/internal/notify"
	"credvault/internal/store"
)

const notifyTimeout = 5 * time.Second

// Workflow records verification decisions on documents and titles.
type Workflow struct {
	credentials store.CredentialStore
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// DecideInput is one requested transition.
type DecideInput struct {
	State         string
	Justification string
}

// NewWorkflow constructs a Workflow. A nil notifier drops events.
func NewWorkflow(credentials store.CredentialStore, notifier notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Workflow{
		credentials: credentials,
		notifier:    notifier,
		metrics:     m,
		logger:      logger.With("component", "workflow"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Decide moves a record to an approved, rejected or observed state.
// The current state never blocks a decision; the justification rule is
// checked against the target state only.
func (w *Workflow) Decide(ctx context.Context, principal auth.Principal, kind models.CredentialKind, id string, in DecideInput) (models.Credential, error) {
	var zero models.Credential
	if w == nil || w.credentials == nil {
		return zero, internalError(fmt.Errorf("workflow is not configured"))
	}
	if !principal.Can(auth.CapCredentialReview) {
		return zero, forbidden(fmt.Errorf("not allowed to decide %s", kind.Plural()))
	}

	state, justification, err := models.NormalizeDecision(in.State, in.Justification)
	if err != nil {
		return zero, classifyDecisionError(err)
	}

	updated, err := w.credentials.RecordDecision(ctx, kind, strings.TrimSpace(id), models.Decision{
		State:         state,
		Justification: justification,
		DecidedBy:     principal.UserID,
		DecidedAt:     w.now(),
	})
	if err != nil {
		return zero, err
	}
	if updated == nil {
		return zero, notFoundCode(fmt.Errorf("%s not found", kind), ErrCodeCredentialNotFound)
	}

	w.metrics.ObserveDecision(string(kind), string(state))
	w.logger.Info("credential decided", "kind", kind, "id", updated.ID, "state", state, "decided_by", principal.UserID)
	w.publish(ctx, updated)
	return *updated, nil
}

func (w *Workflow) publish(ctx context.Context, record *models.Credential) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := w.notifier.Notify(ctx, notify.EventFromCredential(record)); err != nil {
		w.logger.Warn("decision notification failed", "kind", record.Kind, "id", record.ID, "error", err)
	}
}
