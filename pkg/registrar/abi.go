package registrar

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var (
	String, _  = abi.NewType("string", "", nil)
	Bytes, _   = abi.NewType("bytes", "", nil)
	Address, _ = abi.NewType("address", "", nil)
	Uint8, _   = abi.NewType("uint8", "", nil)
	Uint32, _  = abi.NewType("uint32", "", nil)
	Uint96, _  = abi.NewType("uint96", "", nil)

	registerMethod = abi.NewMethod("register", "register", abi.Function, "nonpayable", false, false, abi.Arguments{
		{Name: "name", Type: String},
		{Name: "encryptedEmail", Type: Bytes},
		{Name: "upkeepContract", Type: Address},
		{Name: "gasLimit", Type: Uint32},
		{Name: "adminAddress", Type: Address},
		{Name: "checkData", Type: Bytes},
		{Name: "amount", Type: Uint96},
		{Name: "source", Type: Uint8},
		{Name: "sender", Type: Address},
	}, nil)

	hashArgs = abi.Arguments{
		{Name: "upkeepContract", Type: Address},
		{Name: "gasLimit", Type: Uint32},
		{Name: "adminAddress", Type: Address},
		{Name: "checkData", Type: Bytes},
	}
)

// Request is a registration request as carried by a token transfer.
type Request struct {
	Name           string
	EncryptedEmail []byte
	Target         common.Address
	GasLimit       uint32
	Admin          common.Address
	CheckData      []byte
	Amount         *big.Int
	Source         uint8
	Sender         common.Address
}

// Params returns the fields the request hash commits to.
func (r Request) Params() Params {
	return Params{
		Name:      r.Name,
		Target:    r.Target,
		GasLimit:  r.GasLimit,
		Admin:     r.Admin,
		CheckData: r.CheckData,
	}
}

// Params identify an upkeep to register. Name is informational and is not
// part of the request hash.
type Params struct {
	Name      string
	Target    common.Address
	GasLimit  uint32
	Admin     common.Address
	CheckData []byte
}

// Hash is keccak256(abi.encode(target, gasLimit, admin, checkData)).
func (p Params) Hash() (common.Hash, error) {
	checkData := p.CheckData
	if checkData == nil {
		checkData = []byte{}
	}

	encoded, err := hashArgs.Pack(p.Target, p.GasLimit, p.Admin, checkData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to encode request", err)
	}

	return crypto.Keccak256Hash(encoded), nil
}

// EncodeRegister builds the TransferAndCall payload of a registration
// request.
func EncodeRegister(req Request) ([]byte, error) {
	amount := req.Amount
	if amount == nil {
		amount = new(big.Int)
	}

	args, err := registerMethod.Inputs.Pack(
		req.Name,
		nonNil(req.EncryptedEmail),
		req.Target,
		req.GasLimit,
		req.Admin,
		nonNil(req.CheckData),
		amount,
		req.Source,
		req.Sender,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode register call", err)
	}

	return append(append([]byte{}, registerMethod.ID...), args...), nil
}

// DecodeRegister parses a register call. Any other call is rejected with
// ErrFunctionNotPermitted.
func DecodeRegister(data []byte) (Request, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], registerMethod.ID) {
		return Request{}, types.ErrFunctionNotPermitted
	}

	m := make(map[string]interface{})
	if err := registerMethod.Inputs.UnpackIntoMap(m, data[4:]); err != nil {
		return Request{}, fmt.Errorf("%w: %s", types.ErrInvalidDataLength, err)
	}

	var (
		req Request
		ok  bool
	)

	if req.Name, ok = m["name"].(string); !ok {
		return Request{}, fmt.Errorf("%w: name of incorrect type", types.ErrInvalidDataLength)
	}

	req.EncryptedEmail, _ = m["encryptedEmail"].([]byte)
	req.Target, _ = m["upkeepContract"].(common.Address)
	req.GasLimit, _ = m["gasLimit"].(uint32)
	req.Admin, _ = m["adminAddress"].(common.Address)
	req.CheckData, _ = m["checkData"].([]byte)
	req.Source, _ = m["source"].(uint8)
	req.Sender, _ = m["sender"].(common.Address)

	if req.Amount, ok = m["amount"].(*big.Int); !ok {
		return Request{}, fmt.Errorf("%w: amount of incorrect type", types.ErrInvalidDataLength)
	}

	return req, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}

	return b
}
