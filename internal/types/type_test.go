package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypePredicates(t *testing.T) {
	assert.True(t, Int(32).IsNumeric())
	assert.True(t, Int(32).IsIntegral())
	assert.False(t, Float(64).IsIntegral())
	assert.True(t, Float(64).IsNumeric())
	assert.True(t, CharacterSequence(10, true).IsCharacterSequence())
	assert.False(t, Boolean().IsNumeric())
}

func TestTypeSizeInBits(t *testing.T) {
	assert.Equal(t, 1, Boolean().SizeInBits())
	assert.Equal(t, 32, Int(32).SizeInBits())
	assert.Equal(t, 64, Int(0).SizeInBits())
	assert.Equal(t, 32, Float(32).SizeInBits())
	assert.Equal(t, 64, Float(64).SizeInBits())
	assert.Equal(t, 64, Decimal(10, 2).SizeInBits())
	assert.Equal(t, 32, Date().SizeInBits())
	assert.Equal(t, 64, DateTime().SizeInBits())
	assert.Equal(t, 64, CharacterSequence(100, false).SizeInBits())
}

func TestScalarVectorialConversion(t *testing.T) {
	s := Int(32)
	v := s.AsVectorial()
	assert.Equal(t, Vectorial, v.Category)
	assert.Equal(t, Scalar, s.Category, "conversion must not mutate the source")
	assert.Equal(t, Scalar, v.AsScalar().Category)
	assert.True(t, s.Equal(v), "Equal ignores Category")
}

func TestTypeEqualIsStructural(t *testing.T) {
	assert.True(t, Decimal(10, 2).Equal(Decimal(10, 2)))
	assert.False(t, Decimal(10, 2).Equal(Decimal(10, 3)))
	assert.False(t, Int(32).Equal(Float(32)))
	assert.True(t, CharacterSequence(5, true).Equal(CharacterSequence(5, true)))
	assert.False(t, CharacterSequence(5, true).Equal(CharacterSequence(5, false)))
}
