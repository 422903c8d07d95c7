package schema

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	for _, path := range []string{
		"ec2.security_group",
		"ec2.network_interface",
		"ec2.instance",
		"autoscaling.autoscaling_group",
		"cloudtrail.trail",
		"cloudwatchlogs.log_group",
		"dynamodb.table",
		"ecr.repository",
		"ecs.cluster",
		"eks.cluster",
		"iam.managed_policy",
		"kms.key",
		"lambda.function",
		"memorydb.cluster",
		"rds.db_instance",
		"redshift.cluster",
		"route53.hosted_zone",
		"elbv2.load_balancer",
		"s3.bucket",
		"sqs.queue",
	} {
		_, ok := r.Schema(path)
		assert.True(t, ok, "missing %s", path)
	}

	sg, _ := r.Schema("ec2.security_group")
	assert.Equal(t, "SecurityGroups", sg.ResourceKey)
	assert.Equal(t, "GroupId", sg.IDAttribute)
	assert.False(t, sg.Global)

	iam, _ := r.Schema("iam.managed_policy")
	assert.True(t, iam.Global)
	assert.Equal(t, "Local", iam.ScanParams["Scope"])
}

func loadOne(t *testing.T, doc string) (*Registry, error) {
	t.Helper()
	fsys := fstest.MapFS{
		"defs/test.yaml": &fstest.MapFile{Data: []byte(doc)},
	}
	return LoadFS(fsys, "defs")
}

func TestLoadValidDefinition(t *testing.T) {
	r, err := loadOne(t, `
service: widget
kinds:
  thing:
    resource_key: Things
    id_attribute: ThingId
    paginator: ListThings
    shape:
      ThingId: string
      Size: integer
      Parts:
        - Name: string
          Weight: number
`)
	require.NoError(t, err)

	s, ok := r.Schema("widget.thing")
	require.True(t, ok)
	assert.Equal(t, []string{"ThingId", "Size", "Parts"}, s.Shape.FieldNames)
	parts := s.Shape.Fields["Parts"]
	require.Equal(t, SequenceShape, parts.Kind)
	assert.Equal(t, RecordShape, parts.Elem.Kind)
}

func TestLoadRejectsMalformedDefinitions(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "missing service",
			doc: `
kinds:
  thing:
    resource_key: Things
    id_attribute: Id
    paginator: ListThings
    shape:
      Id: string
`,
		},
		{
			name: "missing resource_key",
			doc: `
service: widget
kinds:
  thing:
    id_attribute: Id
    paginator: ListThings
    shape:
      Id: string
`,
		},
		{
			name: "missing paginator",
			doc: `
service: widget
kinds:
  thing:
    resource_key: Things
    id_attribute: Id
    shape:
      Id: string
`,
		},
		{
			name: "unknown field type",
			doc: `
service: widget
kinds:
  thing:
    resource_key: Things
    id_attribute: Id
    paginator: ListThings
    shape:
      Id: timestamp
`,
		},
		{
			name: "id names undeclared field",
			doc: `
service: widget
kinds:
  thing:
    resource_key: Things
    id_attribute: Missing
    paginator: ListThings
    shape:
      Id: string
`,
		},
		{
			name: "id resolves to a record",
			doc: `
service: widget
kinds:
  thing:
    resource_key: Things
    id_attribute: Nested
    paginator: ListThings
    shape:
      Nested:
        Inner: string
`,
		},
		{
			name: "id indexes a non-sequence",
			doc: `
service: widget
kinds:
  thing:
    resource_key: Things
    id_attribute: Id.0
    paginator: ListThings
    shape:
      Id: string
`,
		},
		{
			name: "top-level shape not a record",
			doc: `
service: widget
kinds:
  thing:
    resource_key: Things
    id_attribute: Id
    paginator: ListThings
    shape:
      - string
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadOne(t, tt.doc)
			require.Error(t, err)
			var serr *SchemaError
			assert.ErrorAs(t, err, &serr)
		})
	}
}

func TestIDAttributeThroughSequence(t *testing.T) {
	r, err := loadOne(t, `
service: widget
kinds:
  thing:
    resource_key: Things
    id_attribute: Ids.0
    paginator: ListThings
    shape:
      Ids:
        - string
`)
	require.NoError(t, err)
	_, ok := r.Schema("widget.thing")
	assert.True(t, ok)
}

func TestExpand(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	kinds, err := r.Expand([]string{"ec2"})
	require.NoError(t, err)
	assert.Contains(t, kinds, "ec2.security_group")
	assert.Contains(t, kinds, "ec2.vpc")

	kinds, err = r.Expand([]string{"kms.key", "kms"})
	require.NoError(t, err)
	assert.Equal(t, []string{"kms.key"}, kinds)

	_, err = r.Expand([]string{"nosuch"})
	require.Error(t, err)
	_, err = r.Expand([]string{"ec2.nosuch"})
	require.Error(t, err)
}
