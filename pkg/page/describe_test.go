package page_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/page/pagetest"
)

func TestDescribe(t *testing.T) {
	fake := pagetest.New("https://shop.test/")
	var gotArg map[string]any
	fake.EvaluateFunc = func(fn string, arg any) (any, error) {
		gotArg = arg.(map[string]any)
		return map[string]any{
			"tag":        "button",
			"id":         "buy",
			"classes":    []any{"btn"},
			"attributes": map[string]any{"data-testid": "buy-now"},
			"text":       "Buy now",
			"cssPath":    "html > body:nth-of-type(1) > button:nth-of-type(1)",
			"xpath":      "/html[1]/body[1]/button[1]",
		}, nil
	}

	desc, err := page.Describe(context.Background(), fake, "text=Buy now")
	require.NoError(t, err)
	assert.Equal(t, "button", desc.Tag)
	assert.Equal(t, "buy-now", desc.Attr("data-testid"))
	assert.Equal(t, []string{"btn"}, desc.Classes)
	assert.Equal(t, map[string]any{"kind": "text", "expr": "Buy now"}, gotArg)
}

func TestDescribe_NoMatch(t *testing.T) {
	fake := pagetest.New("https://shop.test/")
	_, err := page.Describe(context.Background(), fake, "#missing")
	assert.ErrorContains(t, err, "no element matches")

	fake.EvaluateFunc = func(string, any) (any, error) { return nil, errors.New("page crashed") }
	_, err = page.Describe(context.Background(), fake, "#missing")
	assert.ErrorContains(t, err, "page crashed")
}

func TestCaptureScript_SharesDescribeHelpers(t *testing.T) {
	script := page.CaptureScript()
	assert.True(t, strings.Contains(script, "const describe = (el)"))
	assert.True(t, strings.Contains(script, "data-testid"))
}
