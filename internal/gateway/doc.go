// Package gateway wires the authgate HTTP server.
//
// # Overview
//
// The Gateway owns the credential/resource store, the token codec, and the
// HTTP server. Every request passes through the same chain:
//
//	requestID -> accessLog -> auth.Gate -> mux
//
// The gate lets exempt paths (/auth and /health by default) through without a
// token and requires "Authorization: Bearer <token>" everywhere else.
//
// # HTTP API
//
//	GET    /health                 liveness, {"status":"ok","users":N}
//	POST   /auth/register          {email, password} -> {access_token}
//	POST   /auth/login             {email, password} -> {access_token}
//	GET    /{collection}           list records, query params filter by field
//	POST   /{collection}           create a record
//	GET    /{collection}/{id}      fetch a record
//	PUT    /{collection}/{id}      replace a record
//	PATCH  /{collection}/{id}      merge fields into a record
//	DELETE /{collection}/{id}      delete a record
//
// Register and login accept JSON or form-encoded bodies. Every failure is
// answered as {"status": <code>, "message": <text>}:
//
//   - 400 "Email and Password already exist" when registering an exact duplicate
//   - 400 "Incorrect email or password" on a failed login
//   - 400 when the store cannot persist a new user (no token is issued)
//   - 401 from the gate for a missing, malformed, invalid, or expired token
//   - 404 for unknown routes and missing records
//
// Successful resource calls always answer 200.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks; graceful shutdown when ctx is canceled
package gateway
