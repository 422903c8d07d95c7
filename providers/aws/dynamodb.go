package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/yairfalse/aerographer/providers"
)

// buildDescribeTables composes list-then-describe: ListTables yields names
// only, so each page describes its tables and surfaces the full
// descriptions under a "Tables" key.
func buildDescribeTables(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*dynamodb.Client](client, "DescribeTables")
	if err != nil {
		return nil, err
	}
	input := &dynamodb.ListTablesInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := dynamodb.NewListTablesPaginator(c, input)
	return &funcPaginator{
		hasMore: p.HasMorePages,
		next: func(ctx context.Context) (map[string]any, error) {
			out, err := p.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			tables := make([]any, 0, len(out.TableNames))
			for _, name := range out.TableNames {
				desc, err := c.DescribeTable(ctx, &dynamodb.DescribeTableInput{
					TableName: aws.String(name),
				})
				if err != nil {
					return nil, fmt.Errorf("describe table %s: %w", name, err)
				}
				table, err := pageToMap(desc.Table)
				if err != nil {
					return nil, err
				}
				tables = append(tables, table)
			}
			return map[string]any{"Tables": tables}, nil
		},
	}, nil
}
