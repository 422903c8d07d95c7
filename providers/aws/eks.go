package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"

	"github.com/yairfalse/aerographer/providers"
)

// buildListEKSClusters composes list-then-describe: ListClusters yields
// names only and DescribeCluster takes one name at a time.
func buildListEKSClusters(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*eks.Client](client, "ListClusters")
	if err != nil {
		return nil, err
	}
	input := &eks.ListClustersInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := eks.NewListClustersPaginator(c, input)
	return &funcPaginator{
		hasMore: p.HasMorePages,
		next: func(ctx context.Context) (map[string]any, error) {
			out, err := p.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			clusters := make([]any, 0, len(out.Clusters))
			for _, name := range out.Clusters {
				desc, err := c.DescribeCluster(ctx, &eks.DescribeClusterInput{
					Name: aws.String(name),
				})
				if err != nil {
					return nil, fmt.Errorf("describe cluster %s: %w", name, err)
				}
				m, err := pageToMap(desc.Cluster)
				if err != nil {
					return nil, err
				}
				clusters = append(clusters, m)
			}
			return map[string]any{"Clusters": clusters}, nil
		},
	}, nil
}
