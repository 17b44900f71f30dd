// Package client is the outbound request pipeline for talking to an authgate
// server.
//
// # Overview
//
// A Client wraps the HTTP verbs over a base URL and timeout. Every call runs
// through the same ordered chain:
//
//	request hooks (headers, authorization) -> transport -> response hooks (token capture) -> normalize
//
// The Authorization header carries the session's effective token: the explicit
// token passed in Options if set, otherwise the token most recently persisted
// in the TokenStore. A 200 or 206 response whose JSON body has an
// "access_token" field overwrites the persisted token.
//
// # Errors
//
// Callers only ever see a Payload or an *Error. Non-success statuses carry the
// server's {"status", "message"} body; transport failures and timeouts carry
// StatusCode 0 and unwrap to the underlying cause. Nothing is retried.
//
// # Usage
//
//	c, err := client.New(client.Options{
//		BaseURL:    "http://localhost:5000",
//		TokenStore: client.NewFileTokenStore(path),
//	})
//	if _, err := c.Login(ctx, "me@example.com", "secret"); err != nil {
//		return err
//	}
//	posts, err := c.Get(ctx, "posts", "", nil)
package client
