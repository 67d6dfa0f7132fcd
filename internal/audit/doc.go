// Package audit dispatches security events asynchronously.
//
// # Components
//
//   - [Sink] consumes events (channel, JSON lines, no-op; Kafka lives in audit/kafkasink).
//   - [Dispatcher] is a buffered relay with drop-if-full or block-if-full semantics.
//   - [Event] is the structured record: type, account, session, source address, metadata.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. The engine decides which events to emit.
//
// # What this package must NOT do
//
//   - Filter events based on business logic.
//   - Import accountsec or any sibling internal package.
package audit
