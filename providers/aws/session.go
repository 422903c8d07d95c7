// Package aws implements the provider boundary on the AWS SDK v2: shared
// config sessions, STS role assumption, per-service clients and named
// paginators that surface SDK pages as plain maps.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/yairfalse/aerographer/providers"
)

// Provider implements providers.Provider against real AWS endpoints.
type Provider struct{}

// New creates an AWS provider.
func New() *Provider {
	return &Provider{}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "aws"
}

// GetSession loads shared config credentials for one profile and region.
func (p *Provider) GetSession(ctx context.Context, profile, region string) (providers.Session, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load config for profile %q region %q: %w", profile, region, err)
	}
	return cfg, nil
}

// AssumeRole derives a session carrying role credentials from an existing
// session.
func (p *Provider) AssumeRole(ctx context.Context, session providers.Session, roleArn string) (providers.Session, error) {
	cfg, err := awsConfig(session)
	if err != nil {
		return nil, err
	}
	stsClient := sts.NewFromConfig(cfg)
	creds := stscreds.NewAssumeRoleProvider(stsClient, roleArn)
	cfg.Credentials = aws.NewCredentialsCache(creds)
	return cfg, nil
}

// CallerIdentity resolves the account behind a session.
func (p *Provider) CallerIdentity(ctx context.Context, session providers.Session) (providers.Identity, error) {
	cfg, err := awsConfig(session)
	if err != nil {
		return providers.Identity{}, err
	}
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return providers.Identity{}, fmt.Errorf("get caller identity: %w", err)
	}
	return providers.Identity{
		AccountID: aws.ToString(out.Account),
		ARN:       aws.ToString(out.Arn),
		UserID:    aws.ToString(out.UserId),
	}, nil
}

func awsConfig(session providers.Session) (aws.Config, error) {
	cfg, ok := session.(aws.Config)
	if !ok {
		return aws.Config{}, fmt.Errorf("session is not an aws.Config (got %T)", session)
	}
	return cfg, nil
}
