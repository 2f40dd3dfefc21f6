// Package auth implements the credential and token primitives of the server:
// a bounded password hashing pool, PASETO v4.local token issuance and
// verification, and the request identity carried through context.
package auth
