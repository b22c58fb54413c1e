package transcoder

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

func sampleUpkeeps() []types.Upkeep {
	return []types.Upkeep{
		{
			ID:                  3,
			Target:              common.HexToAddress("0x7a"),
			ExecuteGas:          250_000,
			Admin:               common.HexToAddress("0xad"),
			CheckData:           []byte{0xde, 0xad},
			Balance:             big.NewInt(1_000),
			AmountSpent:         big.NewInt(20),
			LastKeeper:          common.HexToAddress("0x4b"),
			LastPerformedBlock:  90,
			MaxValidBlocknumber: types.UnlimitedBlock,
			Paused:              true,
		},
		{
			ID:                  8,
			Target:              common.HexToAddress("0x7b"),
			ExecuteGas:          100_000,
			Admin:               common.HexToAddress("0xae"),
			Balance:             big.NewInt(5),
			AmountSpent:         big.NewInt(0),
			MaxValidBlocknumber: types.UnlimitedBlock,
		},
	}
}

func TestEncodeDecode_V2(t *testing.T) {
	upkeeps := sampleUpkeeps()

	encoded, err := Encode(types.UpkeepFormatV2, upkeeps)
	require.NoError(t, err)

	decoded, err := Decode(types.UpkeepFormatV2, encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	assert.Equal(t, upkeeps[0].ID, decoded[0].ID)
	assert.Equal(t, upkeeps[0].Target, decoded[0].Target)
	assert.Equal(t, upkeeps[0].ExecuteGas, decoded[0].ExecuteGas)
	assert.Equal(t, upkeeps[0].Admin, decoded[0].Admin)
	assert.Equal(t, upkeeps[0].CheckData, decoded[0].CheckData)
	assert.Equal(t, upkeeps[0].Balance.String(), decoded[0].Balance.String())
	assert.Equal(t, upkeeps[0].AmountSpent.String(), decoded[0].AmountSpent.String())
	assert.Equal(t, upkeeps[0].LastKeeper, decoded[0].LastKeeper)
	assert.Equal(t, upkeeps[0].MaxValidBlocknumber, decoded[0].MaxValidBlocknumber)
	assert.True(t, decoded[0].Paused)
	assert.Equal(t, uint64(90), decoded[0].LastPerformedBlock)

	assert.Equal(t, types.UpkeepID(8), decoded[1].ID)
	assert.Empty(t, decoded[1].CheckData)
}

func TestTranscodeUpkeeps(t *testing.T) {
	tc := New()

	v2, err := Encode(types.UpkeepFormatV2, sampleUpkeeps())
	require.NoError(t, err)

	same, err := tc.TranscodeUpkeeps(types.UpkeepFormatV2, types.UpkeepFormatV2, v2)
	require.NoError(t, err)
	assert.Equal(t, v2, same)

	v1, err := tc.TranscodeUpkeeps(types.UpkeepFormatV2, types.UpkeepFormatV1, v2)
	require.NoError(t, err)

	decoded, err := Decode(types.UpkeepFormatV1, v1)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	// v1 has no pause flag
	assert.False(t, decoded[0].Paused)
	assert.Equal(t, int64(1_000), decoded[0].Balance.Int64())

	back, err := tc.TranscodeUpkeeps(types.UpkeepFormatV1, types.UpkeepFormatV2, v1)
	require.NoError(t, err)

	decoded, err = Decode(types.UpkeepFormatV2, back)
	require.NoError(t, err)
	assert.Equal(t, types.UpkeepID(3), decoded[0].ID)
	assert.False(t, decoded[0].Paused)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(types.UpkeepFormatV2, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, types.ErrInvalidDataLength)

	_, err = Decode(types.UpkeepFormat(9), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Encode(types.UpkeepFormat(9), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
