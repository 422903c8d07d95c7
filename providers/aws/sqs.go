package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/yairfalse/aerographer/providers"
)

// buildListQueues composes ListQueues with GetQueueAttributes: the list
// call yields URLs only, so each queue is expanded into a record carrying
// its URL and full attribute set under a "Queues" key.
func buildListQueues(client providers.Client, params map[string]any) (providers.Paginator, error) {
	c, err := clientAs[*sqs.Client](client, "ListQueues")
	if err != nil {
		return nil, err
	}
	input := &sqs.ListQueuesInput{}
	if err := applyParameters(params, input); err != nil {
		return nil, err
	}
	p := sqs.NewListQueuesPaginator(c, input)
	return &funcPaginator{
		hasMore: p.HasMorePages,
		next: func(ctx context.Context) (map[string]any, error) {
			out, err := p.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			queues := make([]any, 0, len(out.QueueUrls))
			for _, url := range out.QueueUrls {
				attrs, err := c.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
					QueueUrl:       aws.String(url),
					AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameAll},
				})
				if err != nil {
					return nil, fmt.Errorf("get queue attributes %s: %w", url, err)
				}
				attributes := make(map[string]any, len(attrs.Attributes))
				for k, v := range attrs.Attributes {
					attributes[k] = v
				}
				queues = append(queues, map[string]any{
					"QueueUrl":   url,
					"Attributes": attributes,
				})
			}
			return map[string]any{"Queues": queues}, nil
		},
	}, nil
}
