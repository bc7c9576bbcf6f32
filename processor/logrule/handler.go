package logrule

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/c360/contextrules/contextstore"
	"github.com/c360/contextrules/errors"
	"github.com/c360/contextrules/types"
)

// Handler runs the per-message pipeline: tenant-scoped store session,
// subscription fetch, property selection, and the per-property
// resolve → validate → evaluate → patch → forward loop.
//
// Handlers are safe for concurrent use; each invocation works against a
// fresh store session and holds no state across messages.
type Handler struct {
	store     contextstore.Store
	publisher *Publisher
	metrics   *Metrics
	logger    *slog.Logger
}

// NewHandler creates a message handler
func NewHandler(store contextstore.Store, publisher *Publisher, metrics *Metrics) *Handler {
	return &Handler{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    slog.Default().With("component", "logrule-handler"),
	}
}

// ProcessEvent processes one validated notification envelope.
//
// A nil return means the message is fully handled and must be acknowledged —
// including validation rejections, which are permanent. A non-nil return
// means a transient store failure interrupted processing; the caller leaves
// the message unacknowledged so the queue redelivers it (at-least-once;
// re-incrementing a counter on redelivery is an accepted edge case).
func (h *Handler) ProcessEvent(ctx context.Context, ev *types.SubscriptionEvent) error {
	session := h.store.Session(ev.TenantName())

	sub, err := session.GetSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		if errors.IsTransient(err) {
			return err
		}
		h.metrics.recordError("store")
		h.logger.Warn("Subscription lookup rejected",
			"subscription_id", ev.SubscriptionID, "error", err)
		return nil
	}
	if sub == nil {
		h.metrics.recordRejection(RejectSubscriptionNotFound)
		h.logger.Warn("Subscription not found, dropping notification",
			"subscription_id", ev.SubscriptionID, "tenant", ev.TenantName(),
			"error", RejectSubscriptionNotFound.Err())
		return nil
	}

	for i := range ev.Data {
		if err := h.processEntity(ctx, session, sub, ev, &ev.Data[i]); err != nil {
			return err
		}
	}

	return nil
}

// processEntity fetches the entity fresh from the store and evaluates its
// changed, watched, metadata-paired properties.
func (h *Handler) processEntity(
	ctx context.Context,
	session contextstore.Session,
	sub *types.Subscription,
	ev *types.SubscriptionEvent,
	notified *types.Entity,
) error {
	entity, err := session.GetEntity(ctx, notified.ID)
	if err != nil {
		if errors.IsTransient(err) {
			return err
		}
		h.metrics.recordError("store")
		h.logger.Warn("Entity lookup rejected", "entity_id", notified.ID, "error", err)
		return nil
	}
	if entity == nil {
		h.metrics.recordRejection(RejectEntityNotFound)
		h.logger.Warn("Entity not found, skipping",
			"entity_id", notified.ID, "tenant", ev.TenantName(),
			"error", RejectEntityNotFound.Err())
		return nil
	}

	keys := entity.EvaluableProperties(sub.WatchedAttributes)

	// The notification carries only the properties that changed; evaluate
	// just those when it names any.
	if len(notified.Properties) > 0 {
		filtered := keys[:0]
		for _, key := range keys {
			if notified.HasProperty(key) {
				filtered = append(filtered, key)
			}
		}
		keys = filtered
	}

	for _, key := range keys {
		if err := h.processProperty(ctx, session, ev, entity, key); err != nil {
			if errors.IsTransient(err) {
				return err
			}
			// Per-property isolation: one bad property never blocks its
			// siblings or the whole-message acknowledgement.
			h.metrics.recordError("property")
			h.logger.Warn("Property processing failed, continuing",
				"entity_id", entity.ID, "property", key, "error", err)
		}
	}

	return nil
}

// processProperty runs validate → resolve rule → evaluate → patch → forward
// for one property.
func (h *Handler) processProperty(
	ctx context.Context,
	session contextstore.Session,
	ev *types.SubscriptionEvent,
	entity *types.Entity,
	key string,
) error {
	vp, reason := validateProperty(entity, key)
	if reason != RejectNone {
		h.rejectProperty(ctx, ev, entity, key, reason)
		return nil
	}

	rule, err := session.GetLogRule(ctx, vp.metadata.RuleID())
	if err != nil {
		if errors.IsTransient(err) {
			return err
		}
		h.metrics.recordError("store")
		rule = nil
	}

	switch ruleReason := validateRule(rule); ruleReason {
	case RejectNone:
		// fall through to evaluation

	case RejectRuleDisabled:
		// A disabled rule is treated as in-range: clear accumulated state,
		// then forward unresolved.
		decision := Reset(*vp.metadata)
		if decision.Write {
			if err := h.applyPatch(ctx, session, entity.ID, key, decision, vp); err != nil {
				return err
			}
		}
		h.rejectProperty(ctx, ev, entity, key, ruleReason)
		return nil

	default:
		h.rejectProperty(ctx, ev, entity, key, ruleReason)
		return nil
	}

	decision := Evaluate(EvalInput{
		Value:      *vp.value.Value,
		ObservedAt: *vp.value.ObservedAt,
		Rule:       *rule,
		Metadata:   *vp.metadata,
	})

	if decision.Write {
		if err := h.applyPatch(ctx, session, entity.ID, key, decision, vp); err != nil {
			return err
		}
	}

	switch {
	case decision.InRange:
		h.metrics.recordOutcome("in_range")
	case decision.Faulty:
		h.metrics.recordOutcome("faulty")
		h.logger.Warn("Property marked faulty",
			"entity_id", entity.ID, "property", key,
			"counter", decision.Counter, "threshold", rule.ConsecutiveHit,
			"rule_id", rule.ID, "tenant", ev.TenantName())
	default:
		h.metrics.recordOutcome("out_of_range")
		h.logger.Info("Property out of range, counting",
			"entity_id", entity.ID, "property", key,
			"counter", decision.Counter, "threshold", rule.ConsecutiveHit)
	}

	if decision.Forward {
		if err := h.publisher.ForwardProperty(ctx, ev, entity, key); err != nil {
			h.metrics.recordError("publish")
			h.logger.Warn("Forward publish failed",
				"entity_id", entity.ID, "property", key, "error", err)
		}
	}

	// History is an append-only audit trail: published for every resolved
	// evaluation, faulty included.
	entry := types.LogEntry{
		ID:          uuid.New().String(),
		Tenant:      ev.TenantName(),
		SensorID:    entity.ID,
		PropertyKey: key,
		MetadataKey: types.MetadataKey(key),
		ObservedAt:  vp.value.ObservedAt.UTC(),
		Value:       vp.value.Value,
		Unit:        vp.value.Unit,
	}
	if err := h.publisher.PublishHistory(ctx, entry); err != nil {
		h.metrics.recordError("publish")
		h.logger.Warn("History publish failed",
			"entity_id", entity.ID, "property", key, "error", err)
	}

	return nil
}

// applyPatch persists a decision's counter/status to the metadata
// sub-property. Transient store failures propagate so the message is
// redelivered; semantic rejections (entity gone) are logged and skipped.
func (h *Handler) applyPatch(
	ctx context.Context,
	session contextstore.Session,
	entityID, key string,
	decision Decision,
	vp *validatedProperty,
) error {
	patch := decision.Patch(types.MetadataKey(key), *vp.value.ObservedAt)

	if err := session.PatchEntity(ctx, entityID, patch); err != nil {
		if errors.IsTransient(err) {
			h.metrics.recordPatch("transient_failure")
			return err
		}
		h.metrics.recordPatch("rejected")
		h.logger.Warn("Store rejected metadata patch",
			"entity_id", entityID, "property", key, "error", err)
		return nil
	}

	h.metrics.recordPatch(decision.Status)
	return nil
}

// rejectProperty logs a property-level rejection and forwards the property
// unresolved so the next stage can apply fallback handling.
func (h *Handler) rejectProperty(
	ctx context.Context,
	ev *types.SubscriptionEvent,
	entity *types.Entity,
	key string,
	reason RejectReason,
) {
	h.metrics.recordRejection(reason)
	args := []any{"entity_id", entity.ID, "property", key, "reason", reason.String()}
	if err := reason.Err(); err != nil {
		args = append(args, "error", err)
	}
	h.logger.Warn("Property rejected, forwarding unresolved", args...)

	if err := h.publisher.ForwardProperty(ctx, ev, entity, key); err != nil {
		h.metrics.recordError("publish")
		h.logger.Warn("Unresolved forward publish failed",
			"entity_id", entity.ID, "property", key, "error", err)
	}
}
