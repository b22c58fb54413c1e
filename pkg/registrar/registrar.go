package registrar

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/events"
	"github.com/smartcontractkit/keeper-registry/pkg/prommetrics"
	"github.com/smartcontractkit/keeper-registry/pkg/telemetry"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// AutoApproveType selects which requests may skip owner approval.
type AutoApproveType uint8

const (
	AutoApproveDisabled AutoApproveType = iota
	AutoApproveSenderAllowlist
	AutoApproveAll
)

func (t AutoApproveType) String() string {
	switch t {
	case AutoApproveDisabled:
		return "disabled"
	case AutoApproveSenderAllowlist:
		return "sender_allowlist"
	case AutoApproveAll:
		return "all"
	default:
		return "unknown"
	}
}

// Config is the registration policy.
type Config struct {
	AutoApproveType AutoApproveType `json:"autoApproveType"`
	// AutoApproveMaxAllowed is the number of auto approvals allowed per
	// window.
	AutoApproveMaxAllowed uint32 `json:"autoApproveMaxAllowed"`
	// WindowSizeInBlocks is the length of the auto approval window. Zero
	// means a single window that never ends.
	WindowSizeInBlocks uint32   `json:"windowSizeInBlocks"`
	MinLINKJuels       *big.Int `json:"minLINKJuels"`
}

func (c Config) clone() Config {
	out := c
	out.MinLINKJuels = new(big.Int)

	if c.MinLINKJuels != nil {
		out.MinLINKJuels.Set(c.MinLINKJuels)
	}

	return out
}

// PendingRequest is a registration waiting for owner approval. Repeated
// requests for the same hash accumulate their balances.
type PendingRequest struct {
	Admin   common.Address
	Balance *big.Int
}

// Registry is the part of the upkeep registry the registrar drives.
type Registry interface {
	Address() common.Address
	RegisterFundedUpkeep(ctx context.Context, caller, target common.Address, gasLimit uint32, admin common.Address, checkData []byte, amount *big.Int) (types.UpkeepID, error)
}

type Options struct {
	Address  common.Address
	Owner    common.Address
	Token    types.FundingLedger
	Registry Registry
	Clock    types.BlockSource
	Config   Config
	Logger   *log.Logger
}

// Registrar accepts registration requests paid for with a token transfer
// and either registers them at once or holds them for owner approval.
type Registrar struct {
	address  common.Address
	token    types.FundingLedger
	registry Registry
	clock    types.BlockSource
	logger   *log.Logger

	mu             sync.Mutex
	owner          common.Address
	conf           Config
	approvedCount  uint32
	windowStart    uint64
	windowApproved uint32
	allowed        map[common.Address]bool
	pending        map[common.Hash]*PendingRequest

	events *events.Feed
}

func New(opts Options) (*Registrar, error) {
	if opts.Token == nil || opts.Registry == nil || opts.Clock == nil {
		return nil, fmt.Errorf("%w: token, registry and clock are required", types.ErrInvalidConfig)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	logger = telemetry.WrapLogger(logger, "registrar")

	return &Registrar{
		address:  opts.Address,
		token:    opts.Token,
		registry: opts.Registry,
		clock:    opts.Clock,
		logger:   logger,
		owner:    opts.Owner,
		conf:     opts.Config.clone(),
		allowed:  make(map[common.Address]bool),
		pending:  make(map[common.Hash]*PendingRequest),
		events:   events.NewFeed(logger),
	}, nil
}

func (r *Registrar) Address() common.Address {
	return r.address
}

func (r *Registrar) Subscribe() (int, <-chan types.Event) {
	return r.events.Subscribe()
}

func (r *Registrar) Unsubscribe(subscriptionID int) {
	r.events.Unsubscribe(subscriptionID)
}

func (r *Registrar) meta() types.EventMeta {
	return types.EventMeta{Block: r.clock.BlockNumber()}
}

// OnTokenTransfer handles a register call paid for by the transfer that
// triggered it. The decoded amount and sender must match the transfer.
func (r *Registrar) OnTokenTransfer(ctx context.Context, sender common.Address, amount *big.Int, data []byte) error {
	if caller, ok := types.TokenCaller(ctx); !ok || caller != r.token.Address() {
		return types.ErrOnlyCallableByLINKToken
	}

	req, err := DecodeRegister(data)
	if err != nil {
		return err
	}

	if req.Amount.Cmp(amount) != 0 {
		return fmt.Errorf("%w: request carries %s, transferred %s", types.ErrAmountMismatch, req.Amount, amount)
	}

	if req.Sender != sender {
		return fmt.Errorf("%w: request names %s, transfer from %s", types.ErrSenderMismatch, req.Sender, sender)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conf.MinLINKJuels != nil && amount.Cmp(r.conf.MinLINKJuels) < 0 {
		return fmt.Errorf("%w: %s below minimum %s", types.ErrInsufficientPayment, amount, r.conf.MinLINKJuels)
	}

	return r.register(ctx, req)
}

func (r *Registrar) register(ctx context.Context, req Request) error {
	if req.Admin == types.ZeroAddress {
		return fmt.Errorf("%w: admin must be set", types.ErrRegistrationRequestFailed)
	}

	params := req.Params()

	hash, err := params.Hash()
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrRegistrationRequestFailed, err)
	}

	requested := types.RegistrationRequested{
		EventMeta: r.meta(),
		Hash:      hash,
		Name:      req.Name,
		Target:    req.Target,
		GasLimit:  req.GasLimit,
		Admin:     req.Admin,
		Amount:    new(big.Int).Set(req.Amount),
		Source:    req.Source,
	}

	if !r.shouldAutoApprove(req.Sender) {
		request, ok := r.pending[hash]
		if !ok {
			request = &PendingRequest{Admin: req.Admin, Balance: new(big.Int)}
			r.pending[hash] = request
		}

		request.Balance.Add(request.Balance, req.Amount)
		prommetrics.RegistryRegistrations.WithLabelValues(prommetrics.RegistrationPending).Inc()

		r.events.Publish(requested)

		return nil
	}

	id, err := r.approve(ctx, params, req.Amount)
	if err != nil {
		return err
	}

	r.approvedCount++
	r.windowApproved++
	prommetrics.RegistryRegistrations.WithLabelValues(prommetrics.RegistrationAutoApproved).Inc()

	r.events.Publish(requested)
	r.events.Publish(types.RegistrationApproved{EventMeta: r.meta(), Hash: hash, Name: params.Name, ID: id})

	return nil
}

// shouldAutoApprove applies the approval policy, rolling the approval
// window forward when the current block has left it.
func (r *Registrar) shouldAutoApprove(sender common.Address) bool {
	switch r.conf.AutoApproveType {
	case AutoApproveAll:
	case AutoApproveSenderAllowlist:
		if !r.allowed[sender] {
			return false
		}
	default:
		return false
	}

	if size := uint64(r.conf.WindowSizeInBlocks); size > 0 {
		block := r.clock.BlockNumber()
		if block >= r.windowStart+size {
			r.windowStart = block - block%size
			r.windowApproved = 0
		}
	}

	return r.windowApproved < r.conf.AutoApproveMaxAllowed
}

// approve registers the upkeep funded with amount held by the registrar.
// A failed transfer leaves no upkeep behind.
func (r *Registrar) approve(ctx context.Context, params Params, amount *big.Int) (types.UpkeepID, error) {
	id, err := r.registry.RegisterFundedUpkeep(ctx, r.address, params.Target, params.GasLimit, params.Admin, params.CheckData, amount)
	if err != nil {
		if types.KindOf(err) == types.KindExternalTransferFailure {
			r.logger.Printf("could not fund upkeep %s with %s: %s", params.Name, amount, err)
		}

		return 0, err
	}

	return id, nil
}

// Approve registers a pending request. The parameters must hash to the
// request's hash.
func (r *Registrar) Approve(ctx context.Context, caller common.Address, params Params, hash common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByOwner, caller)
	}

	request, ok := r.pending[hash]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrRequestNotFound, hash)
	}

	expected, err := params.Hash()
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrHashMismatch, err)
	}

	if expected != hash {
		return fmt.Errorf("%w: parameters hash to %s", types.ErrHashMismatch, expected)
	}

	id, err := r.approve(ctx, params, request.Balance)
	if err != nil {
		return err
	}

	delete(r.pending, hash)

	r.approvedCount++
	prommetrics.RegistryRegistrations.WithLabelValues(prommetrics.RegistrationApproved).Inc()

	r.events.Publish(types.RegistrationApproved{EventMeta: r.meta(), Hash: hash, Name: params.Name, ID: id})

	return nil
}

// Cancel rejects a pending request and refunds its balance to the caller.
// The request admin and the owner may cancel.
func (r *Registrar) Cancel(ctx context.Context, caller common.Address, hash common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.pending[hash]

	if caller != r.owner && (!ok || caller != request.Admin) {
		return fmt.Errorf("%w: %s", types.ErrOnlyAdminOrOwner, caller)
	}

	if !ok {
		return fmt.Errorf("%w: %s", types.ErrRequestNotFound, hash)
	}

	if request.Balance.Sign() > 0 {
		if err := r.token.Transfer(ctx, r.address, caller, request.Balance); err != nil {
			return fmt.Errorf("%w: %s", types.ErrTransferFailed, err)
		}
	}

	delete(r.pending, hash)
	prommetrics.RegistryRegistrations.WithLabelValues(prommetrics.RegistrationCancelled).Inc()

	r.events.Publish(types.RegistrationRejected{EventMeta: r.meta(), Hash: hash})

	return nil
}

func (r *Registrar) SetRegistrationConfig(_ context.Context, caller common.Address, conf Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByOwner, caller)
	}

	r.conf = conf.clone()

	return nil
}

func (r *Registrar) SetAutoApproveAllowedSender(_ context.Context, caller, sender common.Address, allowed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("%w: %s", types.ErrOnlyCallableByOwner, caller)
	}

	if allowed {
		r.allowed[sender] = true
	} else {
		delete(r.allowed, sender)
	}

	return nil
}

// GetRegistrationConfig returns the policy and the total number of
// approved registrations.
func (r *Registrar) GetRegistrationConfig() (Config, uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.conf.clone(), r.approvedCount
}

func (r *Registrar) GetAutoApproveAllowedSender(sender common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.allowed[sender]
}

// GetPendingRequest returns the admin and balance of a pending request.
// Unknown hashes return a zero admin and balance.
func (r *Registrar) GetPendingRequest(hash common.Hash) (common.Address, *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.pending[hash]
	if !ok {
		return types.ZeroAddress, new(big.Int)
	}

	return request.Admin, new(big.Int).Set(request.Balance)
}
