// Package bridge feeds events from external brokers into the websocket
// registry.
//
// Every source carries the same JSON envelope:
//
//	{"kind": "change", "resource": "db1", "payload": {...}}
//
// kind is one of "change", "trace" or "log". The payload is decoded into the
// matching ws type (ChangeNotification, TrafficTrace or LogRecord) and handed
// to the publisher. When resource is empty a source may supply one from the
// transport (the Redis channel suffix or the Kafka message key).
//
// Sources:
//
//   - RedisSource subscribes to channel patterns with PSUBSCRIBE.
//   - AMQPSource consumes a queue, acking after dispatch and rejecting
//     undecodable deliveries without requeue.
//   - KafkaSource joins a consumer group and marks messages after dispatch.
//
// Supervisor runs the enabled sources until its context ends, restarting a
// failed source with exponential backoff.
package bridge
