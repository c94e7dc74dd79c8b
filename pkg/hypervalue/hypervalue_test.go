package hypervalue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpoforge/hpo/pkg/hypervalue"
)

func TestUniformRejectsBadBounds(t *testing.T) {
	_, err := hypervalue.Uniform(1.0, 1.0)
	require.Error(t, err)
}

func TestUniformTrans(t *testing.T) {
	hv, err := hypervalue.Uniform(0, 10)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, hv.Trans(5.0).(float64), 1e-9)
}

func TestQUniformRejectsBadStep(t *testing.T) {
	_, err := hypervalue.QUniform(0, 10, 0)
	require.Error(t, err)

	_, err = hypervalue.QUniform(10, 0, 1)
	require.Error(t, err)
}

func TestChoiceRejectsEmpty(t *testing.T) {
	_, err := hypervalue.Choice(nil)
	require.Error(t, err)
}

func TestChoiceTrans(t *testing.T) {
	hv, err := hypervalue.Choice([]interface{}{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "b", hv.Trans(1.0))
}

func TestArithmeticIsImmutable(t *testing.T) {
	base, err := hypervalue.Uniform(0, 10)
	require.NoError(t, err)

	derived := base.Add(1).Mul(2)
	assert.InDelta(t, 5.0, base.Trans(5.0).(float64), 1e-9)
	assert.InDelta(t, 12.0, derived.Trans(5.0).(float64), 1e-9)
}

func TestRandIntProducesInt(t *testing.T) {
	hv, err := hypervalue.RandInt(0, 10)
	require.NoError(t, err)
	v := hv.Trans(3.0)
	_, ok := v.(int)
	assert.True(t, ok)
}

func TestFlattenDeterministicOrderAndReconstruct(t *testing.T) {
	a, _ := hypervalue.Uniform(0, 1)
	b, _ := hypervalue.Uniform(0, 1)

	template := map[string]interface{}{
		"zeta":  a,
		"alpha": b,
		"fixed": 42,
	}

	reconstruct, leaves := hypervalue.Flatten(template)
	require.Len(t, leaves, 2)
	assert.Same(t, b, leaves[0], "sorted keys place alpha before zeta")
	assert.Same(t, a, leaves[1])

	out := reconstruct([]interface{}{"b-value", "a-value"})
	m := out.(map[string]interface{})
	assert.Equal(t, "a-value", m["zeta"])
	assert.Equal(t, "b-value", m["alpha"])
	assert.Equal(t, 42, m["fixed"])
}
