package params

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fhegraph/hedag/config"
	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/dag/passes"
)

func TestSelectCKKSDerivesDegreeAndChain(t *testing.T) {
	d, err := dag.New("p", 8)
	require.NoError(t, err)
	x, _ := d.MakeInput("x", dag.Cipher)
	y, _ := d.MakeInput("y", dag.Cipher)
	mul := d.MakeBinary(dag.OpMul, x, y)
	_, _ = d.MakeOutput("out", mul)
	passes.Transpile(d)

	set, err := Select(d, config.Default())
	require.NoError(t, err)
	require.Greater(t, set.N, 0)
	require.NotEmpty(t, set.CoeffModulusBits)
	require.GreaterOrEqual(t, set.Slots, 8)
}

func TestSelectShortIntSkipsCoeffModulus(t *testing.T) {
	d, err := dag.New("p", 8)
	require.NoError(t, err)
	x, _ := d.MakeInput("x", dag.Cipher)
	y, _ := d.MakeInput("y", dag.Cipher)
	div := d.MakeBinary(dag.OpDiv, x, y)
	_, _ = d.MakeOutput("out", div)
	passes.Transpile(d)

	set, err := Select(d, config.Default())
	require.NoError(t, err)
	require.Empty(t, set.CoeffModulusBits)
	require.Equal(t, 8, set.Slots)
}

func TestRotationKeysCollectsCipherRotationsOnly(t *testing.T) {
	d, err := dag.New("p", 8)
	require.NoError(t, err)
	x, _ := d.MakeInput("x", dag.Cipher)
	rot := d.MakeLeftRotation(x, 3)
	_, _ = d.MakeOutput("out", rot)
	passes.Transpile(d)

	keys := RotationKeys(d)
	require.Contains(t, keys, 3)
}
