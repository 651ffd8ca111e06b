package scheme

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fhegraph/hedag/backend"
	"github.com/fhegraph/hedag/config"
	"github.com/fhegraph/hedag/dag"
	"github.com/fhegraph/hedag/dag/passes"
)

func compiledDag(t *testing.T, build func(d *dag.Dag)) *dag.Dag {
	t.Helper()
	d, err := dag.New("t", 4)
	require.NoError(t, err)
	build(d)
	passes.Transpile(d)
	return d
}

func TestDecideDoublePicksCKKS(t *testing.T) {
	d := compiledDag(t, func(d *dag.Dag) {
		x, _ := d.MakeInput("x", dag.Cipher)
		zero := d.MakeDenseConstant(dag.NewDenseConst([]float64{0}))
		out := d.MakeBinary(dag.OpAdd, x, zero)
		_, _ = d.MakeOutput("out", out)
	})

	kind, err := Decide(d, config.Default())
	require.NoError(t, err)
	require.Equal(t, backend.SealCKKS, kind)
	require.Equal(t, dag.BackendSealCKKS, d.Decision)
}

func TestDecideInt64PicksBFV(t *testing.T) {
	d := compiledDag(t, func(d *dag.Dag) {
		x, _ := d.MakeInput("x", dag.Cipher)
		one := d.MakeInt64DenseConstant(dag.NewDenseConst([]int64{1}))
		out := d.MakeBinary(dag.OpMul, x, one)
		_, _ = d.MakeOutput("out", out)
	})

	kind, err := Decide(d, config.Default())
	require.NoError(t, err)
	require.Equal(t, backend.SealBFV, kind)
}

func TestDecideDivPicksSmallInt(t *testing.T) {
	d := compiledDag(t, func(d *dag.Dag) {
		x, _ := d.MakeInput("x", dag.Cipher)
		y, _ := d.MakeInput("y", dag.Cipher)
		out := d.MakeBinary(dag.OpDiv, x, y)
		_, _ = d.MakeOutput("out", out)
	})

	kind, err := Decide(d, config.Default())
	require.NoError(t, err)
	require.Equal(t, backend.SmallInt, kind)
}

func TestDecideNeitherDoubleNorIntIsAnError(t *testing.T) {
	d := compiledDag(t, func(d *dag.Dag) {
		x, _ := d.MakeInput("x", dag.Cipher)
		_, _ = d.MakeOutput("out", x)
	})

	_, err := Decide(d, config.Default())
	require.Error(t, err)
}

// TestDecideCKKSDepthBoundary exercises the SEAL/OpenFHE boundary of
// §8 scenario 3/4: max_dep_for_seal = MaxSealBits/DefaultScale -
// DefaultQCount = 881/60 - 3 = 11, so depth 11 stays on SEAL-CKKS and
// depth 13 must upgrade to OpenFHE-CKKS.
func TestDecideCKKSDepthBoundary(t *testing.T) {
	atDepth := func(depth int) backend.Kind {
		d, err := dag.New("t", 4)
		require.NoError(t, err)
		d.MakeDenseConstant(dag.NewDenseConst([]float64{0}))
		d.AfterReductionDepth = depth
		kind, err := Decide(d, config.Default())
		require.NoError(t, err)
		return kind
	}

	require.Equal(t, backend.SealCKKS, atDepth(11))
	require.Equal(t, backend.OpenFHECKKS, atDepth(13))
}

func TestDecideGroupAdoptsDeepestChild(t *testing.T) {
	g, err := dag.NewGroup("g", 4)
	require.NoError(t, err)

	shallow, err := dag.New("shallow", 4)
	require.NoError(t, err)
	sx, _ := shallow.MakeInput("sx", dag.Cipher)
	szero := shallow.MakeDenseConstant(dag.NewDenseConst([]float64{0}))
	sout := shallow.MakeBinary(dag.OpAdd, sx, szero)
	_, _ = shallow.MakeOutput("sout", sout)
	require.NoError(t, g.AddChild(shallow))

	deep, err := dag.New("deep", 4)
	require.NoError(t, err)
	deep.SetNextNodeIndex(g.NextIndex())
	dx, _ := deep.MakeInput("dx", dag.Cipher)
	dy, _ := deep.MakeInput("dy", dag.Cipher)
	dz, _ := deep.MakeInput("dz", dag.Cipher)
	_ = deep.MakeDenseConstant(dag.NewDenseConst([]float64{0}))
	mul1 := deep.MakeBinary(dag.OpMul, dx, dy)
	mul2 := deep.MakeBinary(dag.OpMul, mul1, dz)
	_, _ = deep.MakeOutput("dout", mul2)
	require.NoError(t, g.AddChild(deep))

	for _, child := range g.Children() {
		passes.Transpile(child)
	}

	kind, err := DecideGroup(g, config.Default())
	require.NoError(t, err)
	require.Equal(t, backend.SealCKKS, kind)
	require.Equal(t, deep.AfterReductionDepth, g.AfterReductionDepth)
	for _, child := range g.Children() {
		require.Equal(t, dag.BackendSealCKKS, child.Decision)
	}
}
