// Package api hosts HTTP handlers that front the Galleria REST API.
//
// The handlers assembled by Handler coordinate request validation, response
// shaping, and the ordering guarantees around uploaded files while delegating
// persistence to storage.Repository implementations injected at construction
// time. Token verification and role authorization are provided by the
// auth.TokenManager and auth.Authorizer passed into the handler; the package
// does not reach for globals or singletons and expects callers to supply
// fully configured dependencies.
//
// Handler implementations assume upstream middleware from internal/server has
// already authenticated the request and stored the account on the context.
// Every mutating handler still re-checks the operation class through the
// authorizer so role revocation is effective immediately.
package api
