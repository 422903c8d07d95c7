package evaluation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const denylistPolicy = `package aerographer

import rego.v1

includes := ["ec2.network_interface"]

passed := false if {
	input.data.GroupId == "sg-bad"
}

passed := true if {
	input.data.GroupId != "sg-bad"
}

message := "group is denylisted" if {
	input.data.GroupId == "sg-bad"
}

message := "group ok" if {
	input.data.GroupId != "sg-bad"
}
`

func TestRegoCheck(t *testing.T) {
	ctx := context.Background()
	check, includes, err := RegoCheck(ctx, "ec2.security_group.denylist", denylistPolicy)
	require.NoError(t, err)
	assert.Equal(t, []string{"ec2.network_interface"}, includes)

	bad := mkResource("ec2", "security_group", "sg-bad", map[string]any{"GroupId": "sg-bad"})
	res, err := check(ctx, &CheckContext{Resource: bad})
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "group is denylisted", res.Message)

	good := mkResource("ec2", "security_group", "sg-ok", map[string]any{"GroupId": "sg-ok"})
	res, err = check(ctx, &CheckContext{Resource: good})
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestRegoCheckCompileError(t *testing.T) {
	_, _, err := RegoCheck(context.Background(), "broken", "package aerographer\n\nthis is not rego")
	assert.Error(t, err)
}

func TestLoadRegoDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "ec2.security_group.denylist.rego"),
		[]byte(denylistPolicy), 0o644))

	reg := NewRegistry()
	require.NoError(t, LoadRegoDir(context.Background(), reg, dir))

	def, ok := reg.Definition("ec2.security_group.denylist")
	require.True(t, ok)
	assert.Equal(t, "ec2", def.Service)
	assert.Equal(t, "security_group", def.Kind)
	assert.Equal(t, []string{"ec2.network_interface"}, def.Includes)
}

func TestLoadRegoDirRejectsBadName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "badname.rego"),
		[]byte(denylistPolicy), 0o644))

	err := LoadRegoDir(context.Background(), NewRegistry(), dir)
	assert.Error(t, err)
}
