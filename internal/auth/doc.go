// Package auth issues, verifies, and enforces bearer tokens.
//
// # Tokens
//
// Codec signs HS256 JWTs with the configured jwt_secret:
//
//	codec, err := NewCodec(secret, time.Hour)
//	token, claims, err := codec.Issue("42", "a@example.com")
//	claims, err := codec.Verify(token)
//
// Tokens carry the user id ("sub"), email, "iat" and "exp". They never carry
// the password. Verify reports ErrTokenInvalid for anything malformed, signed
// with another secret or algorithm, or missing a subject, and ErrTokenExpired
// once the codec clock reaches "exp".
//
// # Gate
//
// Gate wraps an http.Handler. Requests matched by the ExemptPolicy pass through
// untouched; every other request must send
//
//	Authorization: Bearer <token>
//
// or it is rejected with 401 and a {"status":401,"message":...} body. Verified
// claims are available to downstream handlers through ClaimsFromContext.
//
// There is no revocation: a token stays valid until it expires.
package auth
