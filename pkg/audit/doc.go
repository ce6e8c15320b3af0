// Package audit records and queries the audit trail of the field-operations
// test-sheet application.
//
// # Overview
//
// Every create, update, delete, login, logout, view, export and search is
// written as one immutable Record naming the actor, the action, the target
// entity and, for updates, a field-level change set derived from before and
// after snapshots.
//
// # Recording
//
// The Recorder is the only write path. It validates the entry, derives the
// change set and inserts the record behind a write timeout and a circuit
// breaker. Recording never fails the caller:
//
//	recorder := audit.NewRecorder(store, audit.DefaultRecorderConfig(), logrus.New(), metrics)
//
//	// inside a request that went through audit.Middleware
//	recorder.LogUpdate(ctx, sheet.ID, before, after)
//
// # Reading
//
// Service answers paginated queries, entity histories, aggregate statistics
// and retention purges over any Store. Handlers exposes those operations
// over HTTP:
//
//	service := audit.NewService(store, audit.ServiceConfig{Metrics: metrics})
//	handlers := audit.NewHandlers(service, recorder, audit.HandlersConfig{})
//
//	api := router.PathPrefix("/api/audit").Subrouter()
//	api.Use(audit.NewMiddleware(audit.DefaultHeaderActorResolver()).Handler)
//	handlers.RegisterRoutes(api)
//
// # Storage
//
// Store implementations live in the memory and sqlstore subpackages. The
// statscache subpackage provides an optional StatsCache.
package audit
