package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsDirect(t *testing.T) {
	v, err := As[float64](2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
}

func TestAsGenericForm(t *testing.T) {
	v, err := As[[]float64]([]any{1.0, 2.0, 3.0})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, v)
}

func TestAsMismatch(t *testing.T) {
	_, err := As[string](2.5)
	assert.True(t, errors.Is(err, ErrSerializationMismatch))

	_, err = As[float64](nil)
	assert.True(t, errors.Is(err, ErrSerializationMismatch))
}

func TestAttributeAsMismatchIsLocal(t *testing.T) {
	av := &AttributeValue{Name: "x", Value: []float64{1, 2}, Quality: QualityValid}

	_, err := AttributeAs[string](av)
	require.Error(t, err)

	// The failed extraction leaves the value usable.
	got, err := AttributeAs[[]float64](av)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got)
	assert.Equal(t, QualityValid, av.Quality)
}

func TestAttributeAsFailedReading(t *testing.T) {
	av := &AttributeValue{Name: "x", Errors: []DevError{{Reason: "API_Boom", Desc: "read failed"}}}
	_, err := AttributeAs[float64](av)
	df, ok := AsDevFailed(err)
	require.True(t, ok)
	assert.Equal(t, "API_Boom", df.Reason())
}

func TestCloneValueIsIndependent(t *testing.T) {
	orig := []float64{1, 2, 3}
	c := CloneValue(orig).([]float64)
	c[0] = 99
	assert.Equal(t, 1.0, orig[0])

	nested := map[string]any{"a": []int64{1, 2}}
	cn := CloneValue(nested).(map[string]any)
	cn["a"].([]int64)[0] = 42
	assert.Equal(t, int64(1), nested["a"].([]int64)[0])

	assert.Equal(t, 5, CloneValue(5))
	assert.Nil(t, CloneValue(nil))
}

func TestNumbers(t *testing.T) {
	nums, ok := Numbers(int32(4))
	require.True(t, ok)
	assert.Equal(t, []float64{4}, nums)

	nums, ok = Numbers([]any{uint64(1), 2.5})
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2.5}, nums)

	_, ok = Numbers("text")
	assert.False(t, ok)
	_, ok = Numbers([]string{"a"})
	assert.False(t, ok)

	assert.Equal(t, 3, Len([]int{1, 2, 3}))
	assert.Equal(t, 1, Len(1.0))
	assert.Equal(t, 0, Len(nil))
}
