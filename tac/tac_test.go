package tac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodBodyDeclareHas(t *testing.T) {
	b := NewMethodBody()
	assert.False(t, b.Has(Temp{Index: 0}))
	b.Declare(Temp{Index: 0})
	assert.True(t, b.Has(Temp{Index: 0}))
}

func TestMethodBodyAppendPreservesOrder(t *testing.T) {
	b := NewMethodBody()
	b.Append(Nop{Base: At(0)})
	b.Append(Nop{Base: At(1)})
	require.Len(t, b.Instrs, 2)
	assert.Equal(t, uint32(0), b.Instrs[0].Off())
	assert.Equal(t, uint32(1), b.Instrs[1].Off())
}

func TestVariableStringsAreDistinctPerSlot(t *testing.T) {
	assert.Equal(t, "this", ThisParam{}.String())
	assert.Equal(t, "arg0", Param{Index: 0}.String())
	assert.NotEqual(t, Param{Index: 0}.String(), Param{Index: 1}.String())
	assert.Equal(t, "t3", Temp{Index: 3}.String())
	assert.Equal(t, "x", Local{Name: "x"}.String())
}

func TestSameVariable(t *testing.T) {
	assert.True(t, SameVariable(Temp{Index: 1}, Temp{Index: 1}))
	assert.False(t, SameVariable(Temp{Index: 1}, Temp{Index: 2}))
	assert.False(t, SameVariable(Temp{Index: 1}, Local{Name: "t1"}))
}

func TestCallStringTagsVirtualDispatch(t *testing.T) {
	c := Call{Base: At(0), Args: []TacOperand{Var{V: Local{Name: "o"}}}}
	assert.Contains(t, c.String(), "call ")

	c.Virtual = true
	assert.Contains(t, c.String(), "callvirt ")
}

func TestBranchStringMarksFinallyEntry(t *testing.T) {
	b := Branch{Base: At(0), Target: 10}
	assert.NotContains(t, b.String(), "finally")

	b.FinallyEntry = true
	assert.Contains(t, b.String(), "finally")
}

func TestPlaceOperandsImplementBothInterfaces(t *testing.T) {
	var places []Place = []Place{
		Var{V: Local{Name: "x"}},
		Deref{Addr: Local{Name: "p"}},
		InstField{Obj: Local{Name: "o"}, Name: "f"},
		ArrayElem{Array: Local{Name: "a"}, Index: Local{Name: "i"}},
	}
	for _, p := range places {
		assert.NotEmpty(t, p.String())
	}
}

func TestConstStringRendersNull(t *testing.T) {
	assert.Equal(t, "null", Const{Value: nil}.String())
	assert.Equal(t, "5", Const{Value: 5}.String())
}
