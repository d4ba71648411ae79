package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tss-ch/mas004-databridge/internal/model"
)

func TestZBCValueCodec_U16LEScaled(t *testing.T) {
	// S4: raw 100 at scale 0.1 decodes to "10"
	encoded, err := EncodeZBCValue("10", model.CodecU16LE, 0.1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{100, 0}, encoded)

	decoded, err := DecodeZBCValue([]byte{100, 0}, model.CodecU16LE, 0.1, 0)
	require.NoError(t, err)
	assert.Equal(t, "10", decoded)
}

func TestZBCValueCodec_ASCII(t *testing.T) {
	encoded, err := EncodeZBCValue("hi", model.CodecASCII, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi\x00"), encoded)

	decoded, err := DecodeZBCValue([]byte("hi\x00\x00\x00"), model.CodecASCII, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "hi", decoded)
}

func TestZBCValueCodec_I16LENegative(t *testing.T) {
	encoded, err := EncodeZBCValue("-5", model.CodecI16LE, 1, 0)
	require.NoError(t, err)

	decoded, err := DecodeZBCValue(encoded, model.CodecI16LE, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "-5", decoded)
}

func TestUltimateCommand_BuildAndParse(t *testing.T) {
	// S5: write LSE1000=1 -> "SetVars;Power;1;\r\n"
	cmd := BuildUltimateCommand("SetVars", "Power", "1")
	assert.Equal(t, "SetVars;Power;1;\r\n", string(cmd))

	ok, err := ParseUltimateResult([]byte("\x06SUCCESS;\r\n"))
	require.NoError(t, err)
	assert.True(t, ok.OK)
	assert.Equal(t, "SUCCESS", ok.ResultCode)

	nak, err := ParseUltimateResult([]byte("\x15ERR_42;\r\n"))
	require.NoError(t, err)
	assert.False(t, nak.OK)
	assert.Equal(t, "ERR_42", nak.ResultCode)
}

func TestExtractUltimateValue_KVField(t *testing.T) {
	v, ok := ExtractUltimateValue("Power", []string{"OK", "Power=1"})
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestExtractUltimateValue_FollowingField(t *testing.T) {
	v, ok := ExtractUltimateValue("Power", []string{"Power", "1"})
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestExtractUltimateValue_SoleArg(t *testing.T) {
	v, ok := ExtractUltimateValue("Power", []string{"1"})
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestExtractUltimateValue_NoArgs(t *testing.T) {
	_, ok := ExtractUltimateValue("Power", nil)
	assert.False(t, ok)
}

func TestExtractLineRHS(t *testing.T) {
	v, ok := ExtractLineRHS("MAP0001=500")
	require.True(t, ok)
	assert.Equal(t, "500", v)
}
