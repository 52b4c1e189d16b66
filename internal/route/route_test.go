package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	path, err := Build(DefaultSubmissionPath, Params{
		ParamProjectID:    "p1",
		ParamBatchID:      "b7",
		ParamSubmissionID: "42",
	})
	require.NoError(t, err)
	assert.Equal(t, "/projects/p1/batches/b7/submissions/42", path)
}

func TestBuild_MissingParam(t *testing.T) {
	path, err := Build("/submissions/{submissionId}", Params{})
	require.NoError(t, err)
	assert.Equal(t, "/submissions/", path)
}

func TestMatch(t *testing.T) {
	params, ok := Match(DefaultSubmissionPath, "/projects/p1/batches/b7/submissions/42")
	require.True(t, ok)
	assert.Equal(t, "p1", params[ParamProjectID])
	assert.Equal(t, "b7", params[ParamBatchID])
	assert.Equal(t, "42", params[ParamSubmissionID])

	_, ok = Match(DefaultSubmissionPath, "/somewhere/else")
	assert.False(t, ok)
}

func TestBuildMatchRoundTrip(t *testing.T) {
	in := Params{ParamProjectID: "alpha", ParamBatchID: "beta", ParamSubmissionID: "9"}
	path, err := Build(DefaultSubmissionPath, in)
	require.NoError(t, err)

	out, ok := Match(DefaultSubmissionPath, path)
	require.True(t, ok)
	assert.Equal(t, in, out)
}
