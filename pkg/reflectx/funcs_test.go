package reflectx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func namedFunc() {}

type receiver struct{}

func (receiver) Method() {}

func TestFunctionName(t *testing.T) {
	t.Run("named function", func(t *testing.T) {
		assert.Contains(t, FunctionName(namedFunc), "reflectx.namedFunc")
	})

	t.Run("bound method strips -fm", func(t *testing.T) {
		var r receiver
		name := FunctionName(r.Method)
		assert.Contains(t, name, "Method")
		assert.NotContains(t, name, "-fm")
	})

	t.Run("anonymous function", func(t *testing.T) {
		name := FunctionName(func() {})
		assert.NotEmpty(t, name)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Empty(t, FunctionName(nil))
	})

	t.Run("not a function", func(t *testing.T) {
		assert.Empty(t, FunctionName(42))
	})
}
