// Package contextrules implements a rule-evaluation consumer pipeline for
// sensor context entities.
//
// The service consumes entity change notifications from a message queue,
// resolves the log rule attached to each changed property, evaluates the
// reported value against the rule's bounds, tracks consecutive violations in
// the property's metadata sub-document, and derives an operational/faulty
// status persisted back to the context store with a single merge-patch. The
// result of each evaluation is forwarded downstream: a narrowed
// single-property event to the alarm-evaluation stage, and an append-only
// log entry to the history stream.
//
// # Architecture
//
//	notifications (JetStream / core NATS)
//	        │
//	        ▼
//	processor/logrule ──── contextstore (entities, rules, subscriptions)
//	        │
//	        ├──► events.alarm.evaluate   (narrowed property events)
//	        └──► events.history.log      (audit trail)
//
// Packages:
//
//   - cmd/contextrules: service entry point
//   - processor/logrule: the evaluation pipeline (engine, validation,
//     transport adapters, publisher)
//   - contextstore: tenant-scoped HTTP gateway to the context store
//   - natsclient: NATS connection management, JetStream consumers
//   - component: lifecycle contract and component manager
//   - config, errors, metric, pkg/retry, types: supporting infrastructure
package contextrules
