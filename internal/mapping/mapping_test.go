// internal/mapping/mapping_test.go
package mapping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/ecat-bridge/internal/bitfield"
)

func TestChannelName(t *testing.T) {
	assert.Equal(t, "AIInputs.Value1", ChannelName("AI Inputs", "Value 1"))
	assert.Equal(t, "Status.Status", ChannelName("Status", "Status"))
	assert.Equal(t, "a.b", ChannelName(" a ", " b"))
}

func TestBuild_FindByName(t *testing.T) {
	tbl, err := Build(1, "ADC1", 16, []Entry{
		{Group: "AI Inputs", Entry: "Value", Offset: 0, Bits: 16},
		{Group: "AI Inputs", Entry: "Cycle", Offset: 2, Bits: 16},
		{Group: "Status", Entry: "Error", Offset: 4, Bit: 3, Bits: 1},
		{Group: "AI Inputs", Entry: "Value", Offset: 6, Bits: 16},
	})
	require.NoError(t, err)

	assert.Equal(t, "ADC1", tbl.Device())
	assert.Equal(t, 1, tbl.DeviceID())
	assert.Equal(t, 16, tbl.PayloadSize())
	assert.Equal(t, 4, tbl.Len())

	i, ok := tbl.FindByName("AIInputs.Cycle")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, bitfield.Field{ByteOffset: 2, Width: 16}, tbl.At(i).Field)

	i, ok = tbl.FindByName("AIInputs.Value")
	require.True(t, ok)
	assert.Equal(t, 0, i, "first match wins")

	_, ok = tbl.FindByName("AI Inputs.Cycle")
	assert.False(t, ok, "lookups use the normalized form only")

	_, ok = tbl.FindByName("Missing.Entry")
	assert.False(t, ok)
}

func TestBuild_RejectsBadEntries(t *testing.T) {
	for _, tc := range []struct {
		name  string
		entry Entry
		want  error
	}{
		{name: "width-0", entry: Entry{Group: "g", Entry: "e", Bits: 0}, want: bitfield.ErrWidth},
		{name: "width-33", entry: Entry{Group: "g", Entry: "e", Bits: 33}, want: bitfield.ErrWidth},
		{name: "bit-9", entry: Entry{Group: "g", Entry: "e", Bit: 9, Bits: 1}, want: bitfield.ErrBitOffset},
		{name: "past-payload", entry: Entry{Group: "g", Entry: "e", Offset: 7, Bits: 16}, want: bitfield.ErrBounds},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(0, "dev", 8, []Entry{tc.entry})
			if !errors.Is(err, tc.want) {
				t.Fatalf("got=%v, want=%v", err, tc.want)
			}
		})
	}
}

func TestBuild_RejectsBadDevice(t *testing.T) {
	_, err := Build(0, "", 8, nil)
	assert.Error(t, err)

	_, err = Build(0, "dev", 0, nil)
	assert.Error(t, err)
}
