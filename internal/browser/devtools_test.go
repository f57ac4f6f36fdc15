package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapEvaluateScript(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{
			"bare expression",
			"document.title",
			"() => (document.title)",
		},
		{
			"expression with slice",
			"document.documentElement.outerHTML.slice(0, 4000)",
			"() => (document.documentElement.outerHTML.slice(0, 4000))",
		},
		{
			"arrow function untouched",
			"(el) => el.value",
			"(el) => el.value",
		},
		{
			"function expression untouched",
			"function () { return 1; }",
			"function () { return 1; }",
		},
		{
			"iife loses its call",
			"(() => { return true; })()",
			"(() => { return true; })",
		},
		{
			"function iife loses its call",
			"(function () { return 1; })()",
			"(function () { return 1; })",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrapEvaluateScript(tt.script))
		})
	}
}

func TestWrapEvaluateScriptTokenInjectionShape(t *testing.T) {
	// Injection scripts arrive as multi-line immediately-invoked
	// expressions; the sidecar must receive the function, not its result
	script := `(() => {
	const token = "tok";
	for (const el of document.querySelectorAll('[name="g-recaptcha-response"]')) { el.value = token; }
	return true;
})()`

	wrapped := wrapEvaluateScript(script)
	assert.True(t, strings.HasPrefix(wrapped, "(() => {"))
	assert.True(t, strings.HasSuffix(wrapped, "})"))
	assert.False(t, strings.HasSuffix(wrapped, ")()"))
}
