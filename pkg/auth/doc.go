// Package auth resolves the logical resource a websocket request addresses and
// authenticates it with single-use tokens.
//
// Request paths select the resource:
//
//	/databases/{name}/...  database
//	/fs/{name}/...         file system
//	/counters/{name}/...   counter storage
//	anything else          the system resource "<system>"
//
// Tokens are HS256 JWTs carrying the subject, an expiry, the granted resource
// names ("*" for all) and an admin flag. Each token is consumed on its first
// successful validation through a TokenStore; a memory store (bloom filter
// pre-check plus an exact set swept on expiry) and a Redis store (SET NX with
// TTL) are provided.
//
// Validator implements ws.Validator. Failures are *errors.Error values whose
// HttpCode is the handshake status:
//
//	401  no token and anonymous access is not allowed
//	403  invalid, expired, reused or insufficient token
//	503  the addressed resource does not exist
package auth
