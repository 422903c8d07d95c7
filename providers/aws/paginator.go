package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yairfalse/aerographer/providers"
)

// Paginator binds a named list operation to a client. Builders are keyed
// by "service.Operation" because operation names repeat across services;
// operations without a named builder fall back to the generic
// marker-following paginator.
func (p *Provider) Paginator(client providers.Client, spec providers.PaginatorSpec) (providers.Paginator, error) {
	if build, ok := paginatorBuilders[spec.Service+"."+spec.Name]; ok {
		return build(client, spec.Parameters)
	}
	return newMarkerPaginator(client, spec)
}

type paginatorBuilder func(client providers.Client, params map[string]any) (providers.Paginator, error)

var paginatorBuilders = map[string]paginatorBuilder{
	"ec2.DescribeSecurityGroups":            buildDescribeSecurityGroups,
	"ec2.DescribeNetworkInterfaces":         buildDescribeNetworkInterfaces,
	"ec2.DescribeInstances":                 buildDescribeInstances,
	"ec2.DescribeSubnets":                   buildDescribeSubnets,
	"ec2.DescribeVpcs":                      buildDescribeVpcs,
	"autoscaling.DescribeAutoScalingGroups": buildDescribeAutoScalingGroups,
	"dynamodb.DescribeTables":               buildDescribeTables,
	"elbv2.DescribeLoadBalancers":           buildDescribeLoadBalancers,
	"iam.ListPolicies":                      buildListPolicies,
	"kms.ListKeys":                          buildListKeys,
	"lambda.ListFunctions":                  buildListFunctions,
	"route53.ListHostedZones":               buildListHostedZones,
	"s3.ListBuckets":                        buildListBuckets,
	"rds.DescribeDBInstances":               buildDescribeDBInstances,
	"ecr.DescribeRepositories":              buildDescribeRepositories,
	"redshift.DescribeClusters":             buildDescribeRedshiftClusters,
	"memorydb.DescribeClusters":             buildDescribeMemoryDBClusters,
	"cloudwatchlogs.DescribeLogGroups":      buildDescribeLogGroups,
	"cloudtrail.ListTrails":                 buildListTrails,
	"ecs.ListClusters":                      buildListECSClusters,
	"eks.ListClusters":                      buildListEKSClusters,
	"sqs.ListQueues":                        buildListQueues,
}

// funcPaginator adapts a typed SDK paginator behind the plain-map page
// interface.
type funcPaginator struct {
	hasMore func() bool
	next    func(ctx context.Context) (map[string]any, error)
}

func (p *funcPaginator) HasMorePages() bool {
	return p.hasMore()
}

func (p *funcPaginator) NextPage(ctx context.Context) (map[string]any, error) {
	return p.next(ctx)
}

// wrap converts one typed page fetcher into a map-yielding paginator.
func wrap[O any](hasMore func() bool, next func(ctx context.Context) (O, error)) providers.Paginator {
	return &funcPaginator{
		hasMore: hasMore,
		next: func(ctx context.Context) (map[string]any, error) {
			out, err := next(ctx)
			if err != nil {
				return nil, err
			}
			return pageToMap(out)
		},
	}
}

// pageToMap renders an SDK output struct as a plain map via its JSON
// form, dropping typed wrappers and nil pointers along the way.
func pageToMap(out any) (map[string]any, error) {
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	var page map[string]any
	if err := json.Unmarshal(b, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}

// applyParameters writes a scan-parameter map onto a typed input struct.
// Parameter names follow the AWS API field names, which match the SDK's
// exported struct fields.
func applyParameters(params map[string]any, input any) error {
	if len(params) == 0 {
		return nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode scan parameters: %w", err)
	}
	if err := json.Unmarshal(b, input); err != nil {
		return fmt.Errorf("apply scan parameters: %w", err)
	}
	return nil
}

func clientAs[C any](client providers.Client, operation string) (C, error) {
	c, ok := client.(C)
	if !ok {
		var zero C
		return zero, fmt.Errorf("%s: wrong client type %T", operation, client)
	}
	return c, nil
}

func buildDescribeSecurityGroups(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*ec2.Client](client, "DescribeSecurityGroups")
	if err != nil {
		return nil, err
	}
	input := &ec2.DescribeSecurityGroupsInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := ec2.NewDescribeSecurityGroupsPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*ec2.DescribeSecurityGroupsOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildDescribeNetworkInterfaces(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*ec2.Client](client, "DescribeNetworkInterfaces")
	if err != nil {
		return nil, err
	}
	input := &ec2.DescribeNetworkInterfacesInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := ec2.NewDescribeNetworkInterfacesPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*ec2.DescribeNetworkInterfacesOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

// buildDescribeInstances flattens the reservation envelope: each page
// yields an "Instances" list gathered across every reservation so the
// schema's resource key resolves directly.
func buildDescribeInstances(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*ec2.Client](client, "DescribeInstances")
	if err != nil {
		return nil, err
	}
	input := &ec2.DescribeInstancesInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := ec2.NewDescribeInstancesPaginator(c, input)
	return &funcPaginator{
		hasMore: p.HasMorePages,
		next: func(ctx context.Context) (map[string]any, error) {
			out, err := p.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			page, err := pageToMap(out)
			if err != nil {
				return nil, err
			}
			var instances []any
			if reservations, ok := page["Reservations"].([]any); ok {
				for _, raw := range reservations {
					rsv, ok := raw.(map[string]any)
					if !ok {
						continue
					}
					if got, ok := rsv["Instances"].([]any); ok {
						instances = append(instances, got...)
					}
				}
			}
			return map[string]any{"Instances": instances}, nil
		},
	}, nil
}

func buildDescribeSubnets(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*ec2.Client](client, "DescribeSubnets")
	if err != nil {
		return nil, err
	}
	input := &ec2.DescribeSubnetsInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := ec2.NewDescribeSubnetsPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*ec2.DescribeSubnetsOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildDescribeVpcs(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*ec2.Client](client, "DescribeVpcs")
	if err != nil {
		return nil, err
	}
	input := &ec2.DescribeVpcsInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := ec2.NewDescribeVpcsPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*ec2.DescribeVpcsOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildDescribeAutoScalingGroups(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*autoscaling.Client](client, "DescribeAutoScalingGroups")
	if err != nil {
		return nil, err
	}
	input := &autoscaling.DescribeAutoScalingGroupsInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := autoscaling.NewDescribeAutoScalingGroupsPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildDescribeLoadBalancers(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*elasticloadbalancingv2.Client](client, "DescribeLoadBalancers")
	if err != nil {
		return nil, err
	}
	input := &elasticloadbalancingv2.DescribeLoadBalancersInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildListPolicies(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*iam.Client](client, "ListPolicies")
	if err != nil {
		return nil, err
	}
	input := &iam.ListPoliciesInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := iam.NewListPoliciesPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*iam.ListPoliciesOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildListKeys(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*kms.Client](client, "ListKeys")
	if err != nil {
		return nil, err
	}
	input := &kms.ListKeysInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := kms.NewListKeysPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*kms.ListKeysOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildListFunctions(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*lambda.Client](client, "ListFunctions")
	if err != nil {
		return nil, err
	}
	input := &lambda.ListFunctionsInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := lambda.NewListFunctionsPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*lambda.ListFunctionsOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildListHostedZones(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*route53.Client](client, "ListHostedZones")
	if err != nil {
		return nil, err
	}
	input := &route53.ListHostedZonesInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := route53.NewListHostedZonesPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*route53.ListHostedZonesOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildListBuckets(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*s3.Client](client, "ListBuckets")
	if err != nil {
		return nil, err
	}
	input := &s3.ListBucketsInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := s3.NewListBucketsPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*s3.ListBucketsOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildDescribeDBInstances(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*rds.Client](client, "DescribeDBInstances")
	if err != nil {
		return nil, err
	}
	input := &rds.DescribeDBInstancesInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := rds.NewDescribeDBInstancesPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*rds.DescribeDBInstancesOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildDescribeRepositories(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*ecr.Client](client, "DescribeRepositories")
	if err != nil {
		return nil, err
	}
	input := &ecr.DescribeRepositoriesInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := ecr.NewDescribeRepositoriesPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*ecr.DescribeRepositoriesOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildDescribeRedshiftClusters(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*redshift.Client](client, "DescribeClusters")
	if err != nil {
		return nil, err
	}
	input := &redshift.DescribeClustersInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := redshift.NewDescribeClustersPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*redshift.DescribeClustersOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildDescribeMemoryDBClusters(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*memorydb.Client](client, "DescribeClusters")
	if err != nil {
		return nil, err
	}
	input := &memorydb.DescribeClustersInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := memorydb.NewDescribeClustersPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*memorydb.DescribeClustersOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildDescribeLogGroups(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*cloudwatchlogs.Client](client, "DescribeLogGroups")
	if err != nil {
		return nil, err
	}
	input := &cloudwatchlogs.DescribeLogGroupsInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := cloudwatchlogs.NewDescribeLogGroupsPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
		return p.NextPage(ctx)
	}), nil
}

func buildListTrails(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*cloudtrail.Client](client, "ListTrails")
	if err != nil {
		return nil, err
	}
	input := &cloudtrail.ListTrailsInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := cloudtrail.NewListTrailsPaginator(c, input)
	return wrap(p.HasMorePages, func(ctx context.Context) (*cloudtrail.ListTrailsOutput, error) {
		return p.NextPage(ctx)
	}), nil
}
