package tx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePropagation(t *testing.T) {
	for p := Required; p <= Nested; p++ {
		got, err := ParsePropagation(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	got, err := ParsePropagation(" requires_new ")
	require.NoError(t, err)
	assert.Equal(t, RequiresNew, got)

	_, err = ParsePropagation("SOMETIMES")
	assert.Error(t, err)
	assert.False(t, Propagation(42).Valid())
	assert.Equal(t, "Propagation(42)", Propagation(42).String())
}

func TestDescriptor_Defaults(t *testing.T) {
	var zero Descriptor
	assert.Equal(t, Required, zero.Propagation())
	assert.True(t, zero.RollsBackOn(errors.New("any")))
	assert.False(t, zero.RollsBackOn(nil))

	d := NewDescriptor(Nested, WithName("import"), ReadOnly(), WithIsolation(IsolationSerializable))
	assert.Equal(t, Nested, d.Propagation())
	assert.Equal(t, "import", d.Name())
	assert.True(t, d.IsReadOnly())
	assert.Equal(t, IsolationSerializable, d.Isolation())
	assert.Equal(t, "SUPPORTS", NewDescriptor(Supports).Name())
}

type stockError struct{ sku string }

func (e *stockError) Error() string { return "out of stock: " + e.sku }

func TestDescriptor_NoRollbackRules(t *testing.T) {
	sentinel := errors.New("soft failure")
	d := NewDescriptor(Required,
		NoRollbackFor(sentinel),
		NoRollbackWhen(func(err error) bool {
			var se *stockError
			return errors.As(err, &se)
		}),
	)

	assert.False(t, d.RollsBackOn(sentinel))
	assert.False(t, d.RollsBackOn(fmt.Errorf("wrapped: %w", sentinel)))
	assert.False(t, d.RollsBackOn(fmt.Errorf("item 2: %w", &stockError{sku: "A-1"})))
	assert.True(t, d.RollsBackOn(errors.New("hard failure")))

	o := d.classify(sentinel)
	assert.True(t, o.failed())
	assert.False(t, o.rollback)
}

func TestDescriptor_OptionsDoNotLeakBetweenDescriptors(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")
	shared := []Option{NoRollbackFor(a)}

	d1 := NewDescriptor(Required, append(shared, NoRollbackFor(b))...)
	d2 := NewDescriptor(Required, shared...)

	assert.False(t, d1.RollsBackOn(b))
	assert.True(t, d2.RollsBackOn(b))
	assert.False(t, d2.RollsBackOn(a))
}
