// Package handler provides HTTP request handlers for Sandstore.
//
// Handlers translate between HTTP and the core services: they read the
// session token from the sandstore_token cookie or the X-Sandstore-Token
// header, collect JSON arguments from the query string (GET) or the body,
// and map domain errors to the uniform {error, reason, detail} body.
package handler
