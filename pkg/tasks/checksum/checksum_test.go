package checksum_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/resolver/pkg/tasks/checksum"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

func sampleTask() schema.PredefinedTask {
	return schema.PredefinedTask{
		APIVersion: schema.TaskAPIVersionV1,
		Kind:       schema.TaskKindPredefinedTask,
		Metadata: schema.PredefinedTaskMeta{
			Name:    "sample-task",
			Version: "1.0.0",
			Tags:    []string{"b-tag", "a-tag"},
		},
		Spec: schema.PredefinedTaskSpec{
			AgentTemplate: schema.AgentTemplate{
				Description: "does a thing",
			},
			Inputs: map[string]schema.TaskInputSpec{
				"z_input": {Type: schema.InputTypeString, Required: true},
				"a_input": {Type: schema.InputTypeNumber},
			},
		},
	}
}

func TestChecksumDeterministic(t *testing.T) {
	t1 := sampleTask()
	t2 := sampleTask()

	c1, err := checksum.Of(t1)
	require.NoError(t, err)
	c2, err := checksum.Of(t2)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Contains(t, c1, checksum.Prefix)
}

func TestChecksumDiffersOnChange(t *testing.T) {
	t1 := sampleTask()
	t2 := sampleTask()
	t2.Metadata.Description = "now with a description"

	c1, err := checksum.Of(t1)
	require.NoError(t, err)
	c2, err := checksum.Of(t2)
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
}

func TestChecksumMapKeyOrderDoesNotAffectDigest(t *testing.T) {
	base := sampleTask()

	reordered := sampleTask()
	reordered.Spec.Inputs = map[string]schema.TaskInputSpec{
		"a_input": base.Spec.Inputs["a_input"],
		"z_input": base.Spec.Inputs["z_input"],
	}

	c1, err := checksum.Of(base)
	require.NoError(t, err)
	c2, err := checksum.Of(reordered)
	require.NoError(t, err)

	assert.Equal(t, c1, c2, "Go map iteration order must not leak into the digest")
}
