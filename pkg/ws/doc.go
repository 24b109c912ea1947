// Package ws implements a connection-scoped WebSocket event push transport.
//
// # Features
//
//   - One Transport per accepted connection with a supervised send loop and receive loop
//   - Unbounded outbound queue with a coalescing cooldown (latest wins)
//   - Idle heartbeats that are never coalesced
//   - Close handshake that acknowledges only 1000 / "CLOSE_NORMAL"
//   - Four variants expressed as strategy pairs: changes, traffic-watch, admin-logs, validate
//   - Explicit Registry of broadcast groups instead of global state
//   - Connection limits, lifecycle events, metrics and graceful shutdown
//
// # Basic Usage
//
// Build the router from variants, then mount the manager as an http.Handler:
//
//	registry := ws.NewRegistry()
//	router := ws.NewRouter()
//	_ = router.Register(ws.ChangesVariant(validator))
//	_ = router.Register(ws.TrafficWatchVariant(adminValidator))
//	_ = router.Register(ws.AdminLogsVariant(adminValidator))
//	_ = router.Register(ws.ValidateVariant(validator))
//
//	manager, err := ws.NewManager(router, registry,
//	    ws.WithMaxConnections(10000),
//	    ws.WithHeartbeatInterval(5*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.Handle("/", manager)
//
// Producers publish through the registry from any goroutine:
//
//	pub := ws.NewPublisher(registry)
//	pub.PublishChange("db1", ws.ChangeNotification{
//	    Type: ws.ChangePut,
//	    ID:   "users/1",
//	    Etag: etag.New(1, 42),
//	})
//
// # Query Parameters
//
//   - id: subscription id chosen by the client, a uuid is assigned when absent
//   - coolDownWithDataLoss: cooldown in milliseconds, 0 disables coalescing
//   - singleUseAuthToken: credential passed to the Validator
//
// # Coalescing
//
// With a positive cooldown, a message popped less than cooldown after the
// previous send replaces the single pending slot instead of being written.
// The pending message is flushed on the next heartbeat tick once the cooldown
// has lapsed, or dropped if a newer message arrives first. This trades
// intermediate states for protection against slow consumers and is meant for
// streams where only the latest state matters.
//
// # Wire Format
//
//	{"Type":"Heartbeat","Time":"2024-01-01T00:00:00Z"}
//	{"StatusCode":200,"StatusMessage":"OK","Time":"2024-01-01T00:00:00Z"}
//	{"Type":"ChangeNotification","Value":{"Type":"Put","Id":"users/1","Etag":"00000000-0000-0001-0000-00000000002A"}}
//
// Handshake failures are answered before the upgrade with the validator's
// status code and a {"Error":"..."} body.
//
// # Event Handling
//
//	manager.Subscribe(ws.EventTransportRejected, func(e ws.Event) {
//	    log.Printf("rejected %s: %d", e.Variant, e.Status)
//	})
//
// # Concurrency Safety
//
//   - Transport.Enqueue and Registry.Broadcast are safe from any goroutine and never block
//   - Cooldown state is owned by the send loop alone
//   - The receive loop only writes control frames, which gorilla/websocket allows concurrently
//   - Receive loop exit cancels the send loop, and a failed write cancels the pending read
package ws
