package core

import "context"

// Identity names the tenant, user and chat session a request acts for.
type Identity struct {
	TenantID  string
	UserID    string
	SessionID string
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom extracts the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// PartitionKey returns the hierarchical key [tenant, user, session] used by chat documents.
func (id Identity) PartitionKey() []string {
	return []string{id.TenantID, id.UserID, id.SessionID}
}
