package node

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

func hexes(addresses []common.Address) []string {
	out := make([]string, len(addresses))
	for i, address := range addresses {
		out[i] = address.Hex()
	}

	return out
}

func TestCoverage(t *testing.T) {
	tests := []struct {
		Name     string
		Eligible []uint64
		Performs []uint64
		Missed   int
		Delay    float64
	}{
		{Name: "Nothing Eligible", Performs: []uint64{3}},
		{Name: "Never Performed", Eligible: []uint64{4, 8}, Missed: 2},
		{Name: "Every Block Covered", Eligible: []uint64{4, 8}, Performs: []uint64{5, 10}, Delay: 1.5},
		{Name: "One Perform Covers Two", Eligible: []uint64{4, 8, 12}, Performs: []uint64{9}, Missed: 1, Delay: 5},
		{Name: "Early Perform Ignored", Eligible: []uint64{4}, Performs: []uint64{2, 4}, Delay: 0},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			missed, delay := coverage(test.Eligible, test.Performs)

			assert.Equal(t, test.Missed, missed)
			assert.InDelta(t, test.Delay, delay, 0.0001)
		})
	}
}

func TestFormatLINK(t *testing.T) {
	juels, _ := new(big.Int).SetString("1250000000000000000", 10)

	assert.Equal(t, "1.2500", FormatLINK(juels))
	assert.Equal(t, "0.0000", FormatLINK(nil))
}

func TestReport_WriteTables(t *testing.T) {
	report := Report{
		Keepers: []KeeperRow{
			{Node: "0123456789abcdef", Address: KeeperAddress(0).Hex(), Performs: 3, Earned: big.NewInt(0)},
		},
		Upkeeps: []UpkeepRow{
			{Index: 0, ID: types.UpkeepID(1), Registered: true, Always: true, Balance: big.NewInt(0), Spent: big.NewInt(0)},
			{Index: 1, Eligible: 4, Missed: 4, Balance: big.NewInt(0), Spent: big.NewInt(0)},
		},
	}

	var buf bytes.Buffer
	report.WriteTables(&buf)

	out := buf.String()
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "always")
}
