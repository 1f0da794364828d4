// Package auth provides authentication for awaren-server.
//
// Users authenticate with HS256 JWTs carrying the user ID in the "sub" claim.
// The HTTP middleware verifies the bearer token and places an Identity in the
// request context; passwords are bcrypt hashes over a sha256 digest.
package auth
