// Package auth implements credential authentication and session lifecycle
// on top of bun.
//
// Credentials:
//   - CredentialService registers accounts, verifies secrets for a username
//     or email and keeps the attempt ledger. Every login call writes one
//     LoginAttempt in the same transaction as the lockout update.
//   - Unknown identifiers, inactive accounts and wrong secrets share one
//     public message. Duplicate registrations reuse it too.
//
// Lockout:
//   - LockoutTracker arms a lock once the failure counter reaches the
//     configured threshold. An active lock is never extended, and a
//     successful login resets the counter.
//
// Tokens:
//   - TokenService issues opaque refresh tokens, validates, revokes and
//     garbage collects them. AccessTokenService mints short lived HS256
//     access credentials.
//   - Auther ties both services into the register, login, refresh and logout
//     flows exposed over HTTP by AuthController.
//
// Activity sinks:
//   - ActivitySink receives lifecycle events. Sinks run best effort, errors
//     are logged and never fail the operation. MetricsSink forwards them to
//     prometheus.
package auth
