package scrape

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAttributes_Set_LastWriteWinsKeepsOrder(t *testing.T) {
	t.Parallel()

	var attrs Attributes
	attrs.Set("Диагональ экрана", "55\"")
	attrs.Set("Разрешение", "3840x2160")
	attrs.Set("диагональ экрана", "65\"")

	require.Len(t, attrs, 2)
	require.Equal(t, "диагональ экрана", attrs[0].Name)
	require.Equal(t, "65\"", attrs[0].Value)
	require.Equal(t, "разрешение", attrs[1].Name)
}

func TestAttributes_Set_NormalizesNames(t *testing.T) {
	t.Parallel()

	var attrs Attributes
	attrs.Set("  Цвет  ", "черный")

	v, ok := attrs.Get("цвет")
	require.True(t, ok)
	require.Equal(t, "черный", v)

	v, ok = attrs.Get(" ЦВЕТ ")
	require.True(t, ok)
	require.Equal(t, "черный", v)

	_, ok = attrs.Get("вес")
	require.False(t, ok)

	attrs.Set("   ", "ignored")
	require.Len(t, attrs, 1)
}

func TestAttributes_MarshalJSON_PreservesOrder(t *testing.T) {
	t.Parallel()

	var attrs Attributes
	attrs.Set("b", "2")
	attrs.Set("a", "1")
	attrs.Set("c", "3")

	data, err := json.Marshal(attrs)
	require.NoError(t, err)
	require.Equal(t, `{"b":"2","a":"1","c":"3"}`, string(data))
}

func TestAttributes_MarshalJSON_EmptyIsObject(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Attributes(nil))
	require.NoError(t, err)
	require.Equal(t, `{}`, string(data))
}

func TestAttributes_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	var attrs Attributes
	attrs.Set("диагональ", "55\"")
	attrs.Set("цвет", "черный")
	attrs.Set("вес", "17,4 кг")

	data, err := json.Marshal(attrs)
	require.NoError(t, err)

	var decoded Attributes
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, attrs, decoded)
}

func TestAttributes_UnmarshalJSON_RejectsNonObject(t *testing.T) {
	t.Parallel()

	var attrs Attributes
	require.Error(t, json.Unmarshal([]byte(`["a","b"]`), &attrs))
	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &attrs))
}
