package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Func {
	return Func{
		ToolName:        name,
		ToolDescription: "echo",
		Fn: func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		},
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))
	assert.Error(t, r.Register(echoTool("echo")))
	assert.Error(t, r.Register(echoTool("")))

	defs := r.Definitions([]string{"echo", "missing"})
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0].Type)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(defs[0].Function.Parameters))

	out, err := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = r.Execute(context.Background(), "missing", nil)
	assert.Error(t, err)
}

func TestRegistry_ExecuteRecoversPanics(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Func{ToolName: "boom", Fn: func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	}}))
	require.NoError(t, r.Register(Func{ToolName: "fail", Fn: func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("nope")
	}}))

	_, err := r.Execute(context.Background(), "boom", nil)
	assert.ErrorContains(t, err, "kaboom")

	_, err = r.Execute(context.Background(), "fail", nil)
	assert.EqualError(t, err, "nope")
	assert.Equal(t, []string{"boom", "fail"}, r.Names())
}
