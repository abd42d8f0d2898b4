// Package httpserver provides the HTTP/HTTPS server for Sandstore.
//
// This package implements the external API using stdlib net/http:
//
//   - Session endpoints: POST /mws/, /mws/{res_id}/keep-alive, /mws/{res_id}/attach
//   - Collection endpoints: /mws/{res_id}/db/{coll}/*
//   - Grading and fixtures: /mws/{res_id}/validate/{coll}, /init/load_json
//   - Admin endpoints: /admin/v1/*, loopback only by default
//   - Health endpoints: /health, /ready, /metrics
//
// Tenant routes run behind Recover, RequestID, Metrics, CORS, a per-IP rate
// limit and Audit. Admin routes replace CORS and the rate limit with a
// network allowlist.
package httpserver
