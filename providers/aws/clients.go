package aws

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/yairfalse/aerographer/providers"
)

// Client constructs the typed SDK client for a service name.
func (p *Provider) Client(service string, session providers.Session) (providers.Client, error) {
	cfg, err := awsConfig(session)
	if err != nil {
		return nil, err
	}
	switch service {
	case "ec2":
		return ec2.NewFromConfig(cfg), nil
	case "autoscaling":
		return autoscaling.NewFromConfig(cfg), nil
	case "cloudtrail":
		return cloudtrail.NewFromConfig(cfg), nil
	case "cloudwatchlogs":
		return cloudwatchlogs.NewFromConfig(cfg), nil
	case "dynamodb":
		return dynamodb.NewFromConfig(cfg), nil
	case "ecr":
		return ecr.NewFromConfig(cfg), nil
	case "ecs":
		return ecs.NewFromConfig(cfg), nil
	case "eks":
		return eks.NewFromConfig(cfg), nil
	case "elbv2":
		return elasticloadbalancingv2.NewFromConfig(cfg), nil
	case "iam":
		return iam.NewFromConfig(cfg), nil
	case "kms":
		return kms.NewFromConfig(cfg), nil
	case "lambda":
		return lambda.NewFromConfig(cfg), nil
	case "memorydb":
		return memorydb.NewFromConfig(cfg), nil
	case "rds":
		return rds.NewFromConfig(cfg), nil
	case "redshift":
		return redshift.NewFromConfig(cfg), nil
	case "route53":
		return route53.NewFromConfig(cfg), nil
	case "s3":
		return s3.NewFromConfig(cfg), nil
	case "sqs":
		return sqs.NewFromConfig(cfg), nil
	case "sts":
		return sts.NewFromConfig(cfg), nil
	default:
		return nil, fmt.Errorf("no client constructor for service %q", service)
	}
}
