package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalArgsPreservesOrder(t *testing.T) {
	args := Args{Int(2), String("x"), Bool(true), Null{}, Float(1.5)}

	data, err := MarshalArgs(args)
	require.NoError(t, err)
	assert.Equal(t, `[2,"x",true,null,1.5]`, string(data))
}

func TestMarshalArgsNilIsEmptyArray(t *testing.T) {
	data, err := MarshalArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestObjectMarshalsSortedKeys(t *testing.T) {
	obj := Object{"b": Int(1), "a": Array{String("z")}}

	data, err := MarshalValue(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["z"],"b":1}`, string(data))
}

func TestMarshalValueRejectsNonFinite(t *testing.T) {
	_, err := MarshalValue(Float(posInf()))
	assert.Error(t, err)
}

func TestUnmarshalValueNumbers(t *testing.T) {
	v, err := UnmarshalValue([]byte(`5`))
	require.NoError(t, err)
	assert.Equal(t, Int(5), v)

	v, err = UnmarshalValue([]byte(`2.5`))
	require.NoError(t, err)
	assert.Equal(t, Float(2.5), v)

	v, err = UnmarshalValue([]byte(`1e3`))
	require.NoError(t, err)
	assert.Equal(t, Float(1000), v)
}

func TestUnmarshalValueNested(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"param1":"asdf","rows":[1,null,true]}`))
	require.NoError(t, err)

	assert.Equal(t, Object{
		"param1": String("asdf"),
		"rows":   Array{Int(1), Null{}, Bool(true)},
	}, v)
}

func TestUnmarshalValueRejectsTrailingData(t *testing.T) {
	_, err := UnmarshalValue([]byte(`1 2`))
	assert.Error(t, err)
}

func TestUnmarshalArgsRequiresArray(t *testing.T) {
	_, err := UnmarshalArgs([]byte(`{"a":1}`))
	assert.Error(t, err)

	args, err := UnmarshalArgs([]byte(`["a", 1]`))
	require.NoError(t, err)
	assert.Equal(t, Args{String("a"), Int(1)}, args)
}

func TestCallPayloadDecodes(t *testing.T) {
	var p CallPayload
	err := json.Unmarshal([]byte(`{"fn":"nodeFunction","params":[[{"param1":"asdf"}]],"action":"call"}`), &p)
	require.NoError(t, err)

	assert.Equal(t, "nodeFunction", p.Function)
	assert.Equal(t, ActionCall, p.Action)
	require.Len(t, p.Params, 1)
	assert.Equal(t, Array{Object{"param1": String("asdf")}}, p.Params[0])
}

func TestCallPayloadNullParams(t *testing.T) {
	var p CallPayload
	err := json.Unmarshal([]byte(`{"fn":"f","params":null,"action":"call"}`), &p)
	require.NoError(t, err)
	assert.Empty(t, p.Params)
}

func TestArgsOfConvertsGoValues(t *testing.T) {
	args, err := ArgsOf(2, int64(3), 4.0, 4.25, "s", nil, []any{true}, map[string]any{"k": "v"})
	require.NoError(t, err)

	assert.Equal(t, Args{
		Int(2), Int(3), Int(4), Float(4.25), String("s"), Null{},
		Array{Bool(true)}, Object{"k": String("v")},
	}, args)
}

func TestArgsOfRejectsUnsupported(t *testing.T) {
	_, err := ArgsOf(struct{}{})
	assert.Error(t, err)
}

func TestToGoRoundTrip(t *testing.T) {
	v := Object{"n": Int(1), "f": Float(0.5), "l": Array{String("x"), Null{}}}
	assert.Equal(t, map[string]any{
		"n": int64(1),
		"f": 0.5,
		"l": []any{"x", nil},
	}, ToGo(v))
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(Null{}))
	assert.False(t, IsNull(Int(0)))
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}
