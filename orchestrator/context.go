package orchestrator

import (
	"context"
	"fmt"

	"github.com/yairfalse/aerographer/providers"
	"github.com/yairfalse/aerographer/types"
)

// AuthError reports a credential, role-assumption or client failure for
// one profile/role/region combination. Isolated: only that combination's
// scan units are skipped.
type AuthError struct {
	Profile string
	Role    string
	Region  string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("auth failed for profile %s role %s in %s: %v", e.Profile, e.Role, e.Region, e.Err)
	}
	return fmt.Sprintf("auth failed for profile %s in %s: %v", e.Profile, e.Region, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ScanError reports a provider call failure inside one scan unit.
// Isolated: the unit is marked failed and siblings continue.
type ScanError struct {
	Context string
	Kind    string
	Err     error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan failed for %s in context %s: %v", e.Kind, e.Context, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// contextName keys one profile/role/region/service combination. The role
// is part of the identity: two account entries sharing a profile but
// assuming different roles are distinct contexts and scan separately.
func contextName(profile, role, region, service string) string {
	if role == "" {
		return fmt.Sprintf("%s:%s:%s", profile, region, service)
	}
	return fmt.Sprintf("%s:%s:%s:%s", profile, role, region, service)
}

// Context is one access point to the provider API with its live handles
// attached.
type Context struct {
	types.ScanContext
	Session providers.Session
	Client  providers.Client
}

// BuildContexts resolves accounts into scan contexts for the given
// services. Each failing profile/role/region combination produces one
// AuthError and degrades only its own contexts.
func (o *Orchestrator) BuildContexts(ctx context.Context, accounts []types.Account, services []string) ([]Context, []*AuthError) {
	var contexts []Context
	var failures []*AuthError

	for _, acct := range accounts {
		for _, region := range acct.Regions {
			session, err := o.provider.GetSession(ctx, acct.Profile, region)
			if err != nil {
				failures = append(failures, &AuthError{Profile: acct.Profile, Region: region, Err: err})
				continue
			}
			if acct.Role != "" {
				session, err = o.provider.AssumeRole(ctx, session, acct.Role)
				if err != nil {
					failures = append(failures, &AuthError{Profile: acct.Profile, Role: acct.Role, Region: region, Err: err})
					continue
				}
			}
			identity, err := o.provider.CallerIdentity(ctx, session)
			if err != nil {
				failures = append(failures, &AuthError{Profile: acct.Profile, Role: acct.Role, Region: region, Err: err})
				continue
			}
			for _, service := range services {
				client, err := o.provider.Client(service, session)
				if err != nil {
					failures = append(failures, &AuthError{Profile: acct.Profile, Role: acct.Role, Region: region, Err: err})
					continue
				}
				contexts = append(contexts, Context{
					ScanContext: types.ScanContext{
						Name:      contextName(acct.Profile, acct.Role, region, service),
						AccountID: identity.AccountID,
						Region:    region,
						Role:      acct.Role,
						Service:   service,
					},
					Session: session,
					Client:  client,
				})
			}
		}
	}
	return contexts, failures
}
