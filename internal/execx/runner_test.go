package execx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Run(t *testing.T) {
	r := ExecRunner{}
	ctx := context.Background()

	require.NoError(t, r.Run(ctx, "true"))

	err := r.Run(ctx, "false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "false")
}

func TestExecRunner_RunInput(t *testing.T) {
	r := ExecRunner{}
	// cat exits zero when it can read all of stdin.
	require.NoError(t, r.RunInput(context.Background(), []byte("key material"), "cat"))
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := ExecRunner{}
	err := r.Run(context.Background(), "definitely-not-a-binary-xyz")
	require.Error(t, err)
}
