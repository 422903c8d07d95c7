// Package providers defines the boundary to a cloud provider API:
// sessions, role assumption, service clients and paginated list calls.
// The core treats every handle as opaque and every call as fallible.
package providers

import "context"

// Session is an opaque credential-bearing handle for one profile and
// region.
type Session = any

// Client is an opaque service client handle.
type Client = any

// Identity describes the caller behind a session.
type Identity struct {
	AccountID string
	ARN       string
	UserID    string
}

// PaginatorSpec names a paginated list operation plus its invocation
// parameters. Service qualifies the operation because operation names are
// only unique per service. PageMarker names the cursor field for
// operations driven by the generic marker-following paginator.
type PaginatorSpec struct {
	Service    string
	Name       string
	PageMarker string
	Parameters map[string]any
}

// Paginator yields provider pages as plain maps until exhausted. Page
// order is the provider's; within one scan unit pages are fetched
// sequentially because each cursor depends on the prior page.
type Paginator interface {
	HasMorePages() bool
	NextPage(ctx context.Context) (map[string]any, error)
}

// Provider is the credential and pagination collaborator.
type Provider interface {
	Name() string
	GetSession(ctx context.Context, profile, region string) (Session, error)
	AssumeRole(ctx context.Context, session Session, roleArn string) (Session, error)
	CallerIdentity(ctx context.Context, session Session) (Identity, error)
	Client(service string, session Session) (Client, error)
	Paginator(client Client, spec PaginatorSpec) (Paginator, error)
}
