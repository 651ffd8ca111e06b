package dag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPowerOfTwoSlots(t *testing.T) {
	_, err := New("d", 3)
	require.Error(t, err)

	d, err := New("d", 8)
	require.NoError(t, err)
	require.Equal(t, 8, d.Slots())
}

func TestMakeInputRejectsDuplicateName(t *testing.T) {
	d, err := New("d", 4)
	require.NoError(t, err)

	_, err = d.MakeInput("x", Cipher)
	require.NoError(t, err)

	_, err = d.MakeInput("x", Cipher)
	require.Error(t, err)
}

func TestMakeOutputRejectsDuplicateName(t *testing.T) {
	d, err := New("d", 4)
	require.NoError(t, err)

	x, err := d.MakeInput("x", Cipher)
	require.NoError(t, err)

	_, err = d.MakeOutput("out", x)
	require.NoError(t, err)
	_, err = d.MakeOutput("out", x)
	require.Error(t, err)
}

func TestMakeBinaryWiresOperandsAndUses(t *testing.T) {
	d, err := New("d", 4)
	require.NoError(t, err)

	x, err := d.MakeInput("x", Cipher)
	require.NoError(t, err)
	y, err := d.MakeInput("y", Cipher)
	require.NoError(t, err)

	sum := d.MakeBinary(OpAdd, x, y)

	require.Equal(t, []NodeIndex{x.Index(), y.Index()}, sum.Operands())
	require.Contains(t, x.Uses(), sum.Index())
	require.Contains(t, y.Uses(), sum.Index())
	require.True(t, sum.IsSink())
	require.False(t, x.IsSink())
}

func TestMakeBinaryDivSetsShortInt(t *testing.T) {
	d, err := New("d", 4)
	require.NoError(t, err)
	x, _ := d.MakeInput("x", Cipher)
	y, _ := d.MakeInput("y", Cipher)

	require.False(t, d.ShortInt)
	d.MakeBinary(OpDiv, x, y)
	require.True(t, d.ShortInt)
}

func TestMakeDenseConstantSetsHasDouble(t *testing.T) {
	d, err := New("d", 4)
	require.NoError(t, err)
	require.False(t, d.HasDouble)
	d.MakeDenseConstant(NewDenseConst([]float64{1, 2}))
	require.True(t, d.HasDouble)
	require.False(t, d.HasInt64)
}

func TestMakeInt64DenseConstantSetsHasInt64(t *testing.T) {
	d, err := New("d", 4)
	require.NoError(t, err)
	d.MakeInt64DenseConstant(NewDenseConst([]int64{1, 2}))
	require.True(t, d.HasInt64)
	require.False(t, d.HasDouble)
}

func TestMakeInputDoesNotSetElementKindFlags(t *testing.T) {
	d, err := New("d", 4)
	require.NoError(t, err)
	_, err = d.MakeInput("x", Cipher)
	require.NoError(t, err)
	require.False(t, d.HasDouble)
	require.False(t, d.HasInt64)
}

func TestAbsorbIntoMergesSoleUser(t *testing.T) {
	d, err := New("d", 4)
	require.NoError(t, err)
	x, _ := d.MakeInput("x", Cipher)
	y, _ := d.MakeInput("y", Cipher)
	z, _ := d.MakeInput("z", Cipher)

	inner := d.MakeBinary(OpAdd, x, y)
	outer := d.MakeBinary(OpAdd, inner, z)

	d.AbsorbInto(outer, inner)

	require.ElementsMatch(t, []NodeIndex{x.Index(), y.Index(), z.Index()}, outer.Operands())
	require.Contains(t, x.Uses(), outer.Index())
	require.Contains(t, y.Uses(), outer.Index())
}

func TestReplaceAllUsesRewiresEveryUser(t *testing.T) {
	d, err := New("d", 4)
	require.NoError(t, err)
	x, _ := d.MakeInput("x", Cipher)
	y, _ := d.MakeInput("y", Cipher)
	repl, _ := d.MakeInput("r", Cipher)

	a := d.MakeBinary(OpAdd, x, y)
	b := d.MakeBinary(OpMul, x, y)

	d.ReplaceAllUses(x.Index(), repl.Index())

	require.Contains(t, a.Operands(), repl.Index())
	require.Contains(t, b.Operands(), repl.Index())
	require.NotContains(t, x.Uses(), a.Index())
	require.NotContains(t, x.Uses(), b.Index())
	require.True(t, x.IsSink())
}

func TestDropNodeClearsEdgesButKeepsIndex(t *testing.T) {
	d, err := New("d", 4)
	require.NoError(t, err)
	x, _ := d.MakeInput("x", Cipher)
	y, _ := d.MakeInput("y", Cipher)
	sum := d.MakeBinary(OpAdd, x, y)

	before := d.NumNodes()
	d.DropNode(sum.Index())
	require.Equal(t, before, d.NumNodes())
	require.True(t, x.IsSink())
	require.True(t, y.IsSink())
}

func TestCombineTypePropagation(t *testing.T) {
	require.Equal(t, Cipher, Combine([]Type{Raw, Cipher, Plain}))
	require.Equal(t, Plain, Combine([]Type{Raw, Plain}))
	require.Equal(t, Raw, Combine([]Type{Raw, Raw}))
}
