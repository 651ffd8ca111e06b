package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunAddition(t *testing.T) {
	out, err := run(8, 1.5, 2.25)
	require.NoError(t, err)
	require.Len(t, out, 8)
	for _, v := range out {
		require.InDelta(t, 3.75, v, 1e-2)
	}
}
