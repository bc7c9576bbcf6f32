// Package logrule implements the rule-evaluation consumer pipeline: it
// consumes entity change notifications, resolves the log rule referenced by
// each watched property's metadata, evaluates the numeric reading against
// the rule's low/high bounds, maintains a per-property consecutive-violation
// counter in the entity's own metadata, derives an operational/faulty status,
// and forwards derived events downstream (alarm evaluation, history logging).
//
// The evaluation engine is a pure function (Evaluate) shared by two thin
// transport adapters: Processor consumes from a JetStream stream with manual
// acknowledgement (at-least-once), and Subscriber consumes typed events from
// a core NATS subject. Both call the same Handler.ProcessEvent.
//
// Per-property failures are isolated: a malformed or unconfigured property is
// logged, forwarded unresolved, and skipped, without blocking evaluation of
// sibling properties or triggering message redelivery. The entity metadata in
// the context store is the only durable state; there is no cross-message
// in-process state.
package logrule
