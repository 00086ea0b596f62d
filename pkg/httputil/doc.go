// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// parameter parsing, validation, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, decision)
//	httputil.WriteCreated(w, resource)
//
// Error responses:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteUnauthorized(w, "Token expired")
//	httputil.WriteForbidden(w, "Insufficient permissions")
//
// # Request Parsing
//
// JSON parsing:
//
//	var req UpsertPrincipalRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
//	eventID, err := httputil.ParsePathInt64(r, "id")
//
// Query parameters:
//
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//	dryRun, err := httputil.ParseQueryBool(r, "dry_run", false)
//
// # Validation
//
//	httputil.ValidateAll(w,
//		func() (bool, string) { return req.Permission != "", "permission is required" },
//		func() (bool, string) { return req.Amount > 0, "amount must be positive" },
//	)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware,
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// # Related Packages
//
//   - pkg/middleware: Authentication and authorization middleware
package httputil
