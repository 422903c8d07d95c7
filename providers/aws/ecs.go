package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ecs"

	"github.com/yairfalse/aerographer/providers"
)

// buildListECSClusters composes list-then-describe: ListClusters yields
// ARNs only, so each page describes its clusters in one batch call and
// surfaces the full descriptions under a "Clusters" key.
func buildListECSClusters(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*ecs.Client](client, "ListClusters")
	if err != nil {
		return nil, err
	}
	input := &ecs.ListClustersInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := ecs.NewListClustersPaginator(c, input)
	return &funcPaginator{
		hasMore: p.HasMorePages,
		next: func(ctx context.Context) (map[string]any, error) {
			out, err := p.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			if len(out.ClusterArns) == 0 {
				return map[string]any{"Clusters": []any{}}, nil
			}
			desc, err := c.DescribeClusters(ctx, &ecs.DescribeClustersInput{
				Clusters: out.ClusterArns,
			})
			if err != nil {
				return nil, fmt.Errorf("describe clusters: %w", err)
			}
			clusters := make([]any, 0, len(desc.Clusters))
			for _, cluster := range desc.Clusters {
				m, err := pageToMap(cluster)
				if err != nil {
					return nil, err
				}
				clusters = append(clusters, m)
			}
			return map[string]any{"Clusters": clusters}, nil
		},
	}, nil
}
