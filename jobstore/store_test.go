package jobstore

import (
	"testing"

	"github.com/devkral/asyncz/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireFuncRef_RejectsJobWithoutFuncRef(t *testing.T) {
	j, err := job.New(nil, nil)
	require.NoError(t, err)
	require.Empty(t, j.FuncRef)

	err = RequireFuncRef(j)
	require.Error(t, err)
	var transientErr *TransientJobError
	assert.ErrorAs(t, err, &transientErr)
}

func TestRequireFuncRef_AcceptsJobWithFuncRef(t *testing.T) {
	j, err := job.New(nil, nil)
	require.NoError(t, err)
	j.FuncRef = "pkg.SomeFunc"

	assert.NoError(t, RequireFuncRef(j))
}
