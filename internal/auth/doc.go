// Package auth provides bearer credential sources for the chat client.
//
// TokenSource implementations read the credential from a fixed value, an
// environment variable, or a file (re-read on every call so rotated
// credentials are picked up). ValidatingTokenSource wraps any source and
// rejects JWTs whose exp claim has passed; signature verification is the
// server's job, so opaque tokens pass through untouched.
package auth
