package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoneyFromString(t *testing.T) {
	m, err := NewMoneyFromString("19.99")
	require.NoError(t, err)
	assert.Equal(t, "19.99", m.String())

	_, err = NewMoneyFromString("nineteen")
	assert.Error(t, err)
	assert.Panics(t, func() { MustMoney("x") })
}

func TestMoneyFromMinor(t *testing.T) {
	assert.True(t, MoneyFromMinor(1999).Equal(MustMoney("19.99")))
	assert.True(t, MoneyFromMinor(-5).Equal(MustMoney("-0.05")))
}

func TestHasMoneyScale(t *testing.T) {
	assert.True(t, HasMoneyScale(MustMoney("1.5")))
	assert.True(t, HasMoneyScale(MustMoney("1.50")))
	assert.False(t, HasMoneyScale(MustMoney("1.505")))
}
