// Package freightsync is a carrier integration engine for ocean freight.
//
// It connects to shipping lines over their REST APIs, EDIFACT messages,
// status e-mails, web portals and manually uploaded documents, and turns
// whatever each carrier returns into one canonical container record.
//
// # Architecture
//
// A fetch flows through four layers:
//
// 1. Carrier adapters (pkg/carrier) implement one uniform capability surface
// per carrier. Built-in adapters cover Maersk, MSC, Hapag-Lloyd and CMA CGM;
// further carriers can be declared in YAML and served by the generic adapter.
//
// 2. The engine (pkg/engine) owns connections. It encrypts credentials in the
// vault (pkg/vault), admits calls through a per-connection sliding-window
// rate limiter (pkg/clients), dispatches by transport and retries transient
// failures with exponential backoff.
//
// 3. The pipeline (internal/pipeline) validates, standardizes, enriches,
// deduplicates and scores every record. Duplicate state lives in
// pkg/dedupstore, in memory or Redis.
//
// 4. Sinks (pkg/sink) publish records and alerts to Kafka or a signed
// webhook, while the monitor (pkg/monitor) health-checks every connection
// and raises alerts.
//
// # Quick Start
//
//	freightsync carriers
//	freightsync fetch --carrier maersk --type api \
//	    --cred client_id=... --cred client_secret=... \
//	    --param containerNumber=MSKU1234567
//	freightsync serve --addr :8080
//
// Configuration is read from freightsync.yaml with FREIGHTSYNC_* environment
// overrides; see pkg/config.
package freightsync
