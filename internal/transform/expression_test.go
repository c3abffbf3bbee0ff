package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Should reject an empty formula", func(t *testing.T) {
		_, err := New("")

		require.Error(t, err)
		assert.ErrorAs(t, err, &EmptyExpressionError{})
	})

	t.Run("Should reject a whitespace-only formula", func(t *testing.T) {
		_, err := New("   \t ")

		require.Error(t, err)
		assert.ErrorAs(t, err, &EmptyExpressionError{})
	})

	t.Run("Should reject a malformed formula", func(t *testing.T) {
		cases := []string{
			"#{input} +",
			"(#{input} - 32",
			"#{input} ** 2",
			"#{input} - 32) * 5/9",
			"abc + #{input}",
		}

		for _, formula := range cases {
			_, err := New(formula)

			require.Error(t, err, "formula %q", formula)
			var invalid *InvalidExpressionError
			assert.ErrorAs(t, err, &invalid, "formula %q", formula)
		}
	})

	t.Run("Should accept a formula that evaluates against the probe value", func(t *testing.T) {
		expr, err := New("(#{input} - 32) * 5/9")

		require.NoError(t, err)
		assert.Equal(t, "(#{input} - 32) * 5/9", expr.Formula())
	})

	t.Run("Should trim surrounding whitespace", func(t *testing.T) {
		expr, err := New("  #{input} - 273.15  ")

		require.NoError(t, err)
		assert.Equal(t, "#{input} - 273.15", expr.Formula())
	})

	t.Run("Should reject division by zero at validation time", func(t *testing.T) {
		_, err := New("#{input} / 0")

		require.Error(t, err)
	})
}

func TestEvaluate(t *testing.T) {
	t.Run("Should convert Fahrenheit to Celsius exactly", func(t *testing.T) {
		expr, err := New("(#{input} - 32) * 5/9")
		require.NoError(t, err)

		result, err := expr.Evaluate(75.2)

		require.NoError(t, err)
		assert.Equal(t, "24", result.String())
	})

	t.Run("Should convert Celsius to Fahrenheit exactly", func(t *testing.T) {
		expr, err := New("(#{input} * 9/5) + 32")
		require.NoError(t, err)

		result, err := expr.Evaluate(24)

		require.NoError(t, err)
		assert.Equal(t, "75.2", result.String())
	})

	t.Run("Should convert Kelvin to Celsius", func(t *testing.T) {
		expr, err := New("#{input} - 273.15")
		require.NoError(t, err)

		result, err := expr.Evaluate(297.15)

		require.NoError(t, err)
		assert.Equal(t, "24", result.String())
	})

	t.Run("Should honor operator precedence and unary minus", func(t *testing.T) {
		expr, err := New("-#{input} + 2 * 3")
		require.NoError(t, err)

		result, err := expr.Evaluate(4)

		require.NoError(t, err)
		assert.Equal(t, "2", result.String())
	})

	t.Run("Should substitute every occurrence of the input token", func(t *testing.T) {
		expr, err := New("#{input} * #{input}")
		require.NoError(t, err)

		result, err := expr.Evaluate(1.5)

		require.NoError(t, err)
		assert.Equal(t, "2.25", result.String())
	})

	t.Run("Should fail on a NaN input instead of producing a value", func(t *testing.T) {
		expr, err := New("(#{input} - 32) * 5/9")
		require.NoError(t, err)

		_, err = expr.Evaluate(math.NaN())

		require.Error(t, err)
	})

	t.Run("Should fail on an infinite input", func(t *testing.T) {
		expr, err := New("#{input} * 2")
		require.NoError(t, err)

		_, err = expr.Evaluate(math.Inf(1))

		require.Error(t, err)
	})

	t.Run("Should fail on a zero-value expression", func(t *testing.T) {
		var expr Expression

		_, err := expr.Evaluate(5)

		require.Error(t, err)
	})
}
