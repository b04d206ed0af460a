// Package identity signs users in and keeps their profile documents in step.
//
// The Gateway is the single session state machine of a client:
//
//	SignedOut ──SignIn/SignUp/Federated──▶ SignedIn
//	SignedIn  ──SignOut / session revoked──▶ SignedOut
//
// Observers registered with OnIdentityChange receive the current identity
// (nil when signed out) immediately and again on every transition, in order.
// Before observers hear about a new identity the gateway upserts the user's
// profile in the users collection with merge semantics: a missing photo URL
// never erases a stored one.
//
// Credentials are checked by a Provider. LocalProvider keeps email/password
// accounts and sessions in SQLite (argon2id hashes, HS256 session tokens) and
// can accept ID tokens from one federated issuer.
//
// Every sign-in failure is an *AuthenticationError carrying a Reason and a
// message fit to show a user; it matches ErrAuthentication with errors.Is.
package identity
