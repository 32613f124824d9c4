package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValueRoundTrip tests the self-describing JSON form for scalars
// and nested lists
func TestValueRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value Value
	}{
		{name: "scalar", value: Scalar("10.42.0.1")},
		{name: "empty scalar", value: Scalar("")},
		{name: "flat list", value: List{Scalar("a"), Scalar("b")}},
		{name: "empty list", value: List{}},
		{
			name: "nested list",
			value: List{
				List{Scalar("node1"), Scalar("10.42.0.10"), Scalar("control")},
				List{Scalar("node2"), Scalar("10.42.0.11"), Scalar("worker")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalValue(tt.value)
			require.NoError(t, err)

			got, err := UnmarshalValue(data)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.value), "decoded %s, want %s", data, tt.name)
		})
	}
}

// TestUnmarshalValueErrors tests that malformed input surfaces as a
// deserialization error instead of a zero value
func TestUnmarshalValueErrors(t *testing.T) {
	inputs := []string{
		``,
		`not json`,
		`{}`,
		`{"other": true}`,
		`{"scalar": 42}`,
		`{"list": "nope"}`,
		`{"list": [{"bogus": 1}]}`,
	}

	for _, input := range inputs {
		if _, err := UnmarshalValue([]byte(input)); err == nil {
			t.Errorf("UnmarshalValue(%q) succeeded, want error", input)
		}
	}
}

// TestValueEqual tests structural equality across variants
func TestValueEqual(t *testing.T) {
	assert.True(t, Scalar("x").Equal(Scalar("x")))
	assert.False(t, Scalar("x").Equal(Scalar("y")))
	assert.False(t, Scalar("x").Equal(List{Scalar("x")}))
	assert.True(t, List{Scalar("a"), List{Scalar("b")}}.Equal(List{Scalar("a"), List{Scalar("b")}}))
	assert.False(t, List{Scalar("a")}.Equal(List{Scalar("a"), Scalar("b")}))
}
