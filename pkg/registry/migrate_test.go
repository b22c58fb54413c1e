package registry

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/keeper-registry/pkg/targets"
	"github.com/smartcontractkit/keeper-registry/pkg/transcoder"
	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

var (
	peerAddr       = common.HexToAddress("0x7f")
	peerTargetAddr = common.HexToAddress("0xbeef")
	transcoderAddr = common.HexToAddress("0x7c")
)

// slowTranscoder holds the migrating registry's lock long enough for a
// migration in the other direction to start.
type slowTranscoder struct {
	delay time.Duration
}

func (s slowTranscoder) TranscodeUpkeeps(from, to types.UpkeepFormat, encoded []byte) ([]byte, error) {
	time.Sleep(s.delay)

	return transcoder.New().TranscodeUpkeeps(from, to, encoded)
}

// migrationPair returns a second registry and configures both sides for
// migration from h.reg to it.
func migrationPair(t *testing.T, h *harness) *Registry {
	t.Helper()

	peer := h.newRegistry(peerAddr, testConfig())

	require.NoError(t, h.reg.SetTranscoder(h.ctx, owner, transcoderAddr, transcoder.New()))
	require.NoError(t, h.reg.SetPeerRegistryMigrationPermission(h.ctx, owner, peerAddr, types.MigrationOutgoing))
	require.NoError(t, peer.SetPeerRegistryMigrationPermission(h.ctx, owner, registryAddr, types.MigrationIncoming))

	return peer
}

func TestMigrateUpkeeps(t *testing.T) {
	h := newHarness(t)
	peer := migrationPair(t, h)

	first := h.register(&targets.AlwaysEligible{PerformGas: 10_000})
	second := h.register(&targets.Never{})
	staying := h.register(&targets.Never{})

	h.fund(h.reg, first, big.NewInt(1_000))
	h.fund(h.reg, second, big.NewInt(2_000))
	h.fund(h.reg, staying, big.NewInt(3_000))

	require.NoError(t, h.reg.PauseUpkeep(h.ctx, admin, second))

	subID, events := h.reg.Subscribe()
	defer h.reg.Unsubscribe(subID)

	require.NoError(t, h.reg.MigrateUpkeeps(h.ctx, admin, []types.UpkeepID{first, second}, peer))

	assert.Equal(t, int64(3_000), h.token.BalanceOf(registryAddr).Int64())
	assert.Equal(t, int64(3_000), h.token.BalanceOf(peerAddr).Int64())

	assert.Equal(t, []types.UpkeepID{staying}, h.reg.GetActiveUpkeepIDs(0, 0))
	assert.Equal(t, []types.UpkeepID{first, second}, peer.GetActiveUpkeepIDs(0, 0))

	migrated := peer.GetUpkeep(second)
	assert.Equal(t, admin, migrated.Admin)
	assert.Equal(t, int64(2_000), migrated.Balance.Int64())
	assert.True(t, migrated.Paused)
	assert.Equal(t, []byte{0x01}, migrated.CheckData)
	assert.Equal(t, executeGas, migrated.ExecuteGas)

	evt, ok := (<-events).(types.UpkeepMigrated)
	require.True(t, ok)
	assert.Equal(t, first, evt.ID)
	assert.Equal(t, peerAddr, evt.Destination)
	assert.Equal(t, int64(1_000), evt.RemainingBalance.Int64())

	// ids the destination assigns never collide with imported ones
	h.dir.Deploy(peerTargetAddr, &targets.Never{})

	own, err := peer.RegisterUpkeep(h.ctx, owner, peerTargetAddr, executeGas, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, UpkeepIDFor(peerAddr, 1), own)
	assert.NotContains(t, []types.UpkeepID{first, second}, own)

	h.assertSolvent(h.reg)
	h.assertSolvent(peer)
}

func TestMigrateUpkeeps_Validation(t *testing.T) {
	h := newHarness(t)
	peer := migrationPair(t, h)

	id := h.register(&targets.Never{})
	cancelled := h.register(&targets.Never{})
	require.NoError(t, h.reg.CancelUpkeep(h.ctx, owner, cancelled))

	for _, tc := range []struct {
		Name        string
		Caller      common.Address
		IDs         []types.UpkeepID
		Destination types.MigratableRegistry
		ExpectedErr error
	}{
		{Name: "to self", Caller: admin, IDs: []types.UpkeepID{id}, Destination: h.reg, ExpectedErr: types.ErrMigrationNotPermitted},
		{Name: "no ids", Caller: admin, Destination: peer, ExpectedErr: types.ErrArrayHasNoEntries},
		{Name: "duplicate ids", Caller: admin, IDs: []types.UpkeepID{id, id}, Destination: peer, ExpectedErr: types.ErrDuplicateEntry},
		{Name: "not admin", Caller: stranger, IDs: []types.UpkeepID{id}, Destination: peer, ExpectedErr: types.ErrOnlyCallableByAdmin},
		{Name: "unknown id", Caller: admin, IDs: []types.UpkeepID{99}, Destination: peer, ExpectedErr: types.ErrUpkeepNotFound},
		{Name: "cancelled", Caller: admin, IDs: []types.UpkeepID{cancelled}, Destination: peer, ExpectedErr: types.ErrUpkeepNotActive},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			assert.ErrorIs(t, h.reg.MigrateUpkeeps(h.ctx, tc.Caller, tc.IDs, tc.Destination), tc.ExpectedErr)
			assert.Equal(t, 2, func() int { s, _ := h.reg.GetState(); return s.NumUpkeeps }())
		})
	}
}

func TestMigrateUpkeeps_Permissions(t *testing.T) {
	t.Run("transcoder not set", func(t *testing.T) {
		h := newHarness(t)
		peer := h.newRegistry(peerAddr, testConfig())

		require.NoError(t, h.reg.SetPeerRegistryMigrationPermission(h.ctx, owner, peerAddr, types.MigrationBidirectional))

		id := h.register(&targets.Never{})

		err := h.reg.MigrateUpkeeps(h.ctx, admin, []types.UpkeepID{id}, peer)
		assert.ErrorIs(t, err, types.ErrTranscoderNotSet)
	})

	t.Run("outgoing not granted", func(t *testing.T) {
		h := newHarness(t)
		peer := migrationPair(t, h)

		require.NoError(t, h.reg.SetPeerRegistryMigrationPermission(h.ctx, owner, peerAddr, types.MigrationIncoming))
		assert.Equal(t, types.MigrationIncoming, h.reg.GetPeerRegistryMigrationPermission(peerAddr))

		id := h.register(&targets.Never{})

		err := h.reg.MigrateUpkeeps(h.ctx, admin, []types.UpkeepID{id}, peer)
		assert.ErrorIs(t, err, types.ErrMigrationNotPermitted)
	})

	t.Run("incoming not granted refunds the transfer", func(t *testing.T) {
		h := newHarness(t)
		peer := migrationPair(t, h)

		require.NoError(t, peer.SetPeerRegistryMigrationPermission(h.ctx, owner, registryAddr, types.MigrationOutgoing))

		id := h.register(&targets.Never{})
		h.fund(h.reg, id, big.NewInt(750))

		err := h.reg.MigrateUpkeeps(h.ctx, admin, []types.UpkeepID{id}, peer)
		assert.ErrorIs(t, err, types.ErrMigrationNotPermitted)
		assert.Equal(t, types.KindUnauthorized, types.KindOf(err))

		assert.Equal(t, int64(750), h.reg.GetUpkeep(id).Balance.Int64())
		assert.Equal(t, int64(750), h.token.BalanceOf(registryAddr).Int64())
		assert.Equal(t, int64(0), h.token.BalanceOf(peerAddr).Int64())
		assert.Equal(t, 0, func() int { s, _ := peer.GetState(); return s.NumUpkeeps }())

		h.assertSolvent(h.reg)
	})
}

func TestMigrateUpkeeps_Destinations(t *testing.T) {
	t.Run("destination already holds upkeeps", func(t *testing.T) {
		h := newHarness(t)
		peer := migrationPair(t, h)

		h.dir.Deploy(peerTargetAddr, &targets.Never{})

		resident, err := peer.RegisterUpkeep(h.ctx, owner, peerTargetAddr, executeGas, admin, nil)
		require.NoError(t, err)
		h.fund(peer, resident, big.NewInt(400))

		id := h.register(&targets.Never{})
		h.fund(h.reg, id, big.NewInt(900))

		require.NoError(t, h.reg.MigrateUpkeeps(h.ctx, admin, []types.UpkeepID{id}, peer))

		assert.Equal(t, int64(900), peer.GetUpkeep(id).Balance.Int64())
		assert.Equal(t, int64(400), peer.GetUpkeep(resident).Balance.Int64())
		assert.ElementsMatch(t, []types.UpkeepID{resident, id}, peer.GetActiveUpkeepIDs(0, 0))
		assert.Empty(t, h.reg.GetActiveUpkeepIDs(0, 0))

		h.assertSolvent(h.reg)
		h.assertSolvent(peer)
	})

	t.Run("destination busy", func(t *testing.T) {
		h := newHarness(t)
		peer := migrationPair(t, h)

		encoded, err := transcoder.Encode(Format, []types.Upkeep{{
			ID:                  5,
			Target:              targetAddr,
			ExecuteGas:          executeGas,
			Admin:               admin,
			Balance:             new(big.Int),
			AmountSpent:         new(big.Int),
			MaxValidBlocknumber: types.UnlimitedBlock,
		}})
		require.NoError(t, err)

		peer.mu.Lock()
		defer peer.mu.Unlock()

		start := time.Now()
		err = peer.ReceiveUpkeeps(h.ctx, registryAddr, encoded)

		assert.ErrorIs(t, err, types.ErrMigrationNotPermitted)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("concurrent migrations in opposite directions", func(t *testing.T) {
		h := newHarness(t)
		peer := h.newRegistry(peerAddr, testConfig())

		slow := slowTranscoder{delay: 100 * time.Millisecond}

		for _, pair := range []struct {
			reg  *Registry
			peer common.Address
		}{
			{reg: h.reg, peer: peerAddr},
			{reg: peer, peer: registryAddr},
		} {
			require.NoError(t, pair.reg.SetTranscoder(h.ctx, owner, transcoderAddr, slow))
			require.NoError(t, pair.reg.SetPeerRegistryMigrationPermission(h.ctx, owner, pair.peer, types.MigrationBidirectional))
		}

		outgoing := h.register(&targets.Never{})
		h.fund(h.reg, outgoing, big.NewInt(300))

		h.dir.Deploy(peerTargetAddr, &targets.Never{})

		incoming, err := peer.RegisterUpkeep(h.ctx, owner, peerTargetAddr, executeGas, admin, nil)
		require.NoError(t, err)
		h.fund(peer, incoming, big.NewInt(700))

		errs := make(chan error, 2)

		go func() {
			errs <- h.reg.MigrateUpkeeps(h.ctx, admin, []types.UpkeepID{outgoing}, peer)
		}()

		go func() {
			errs <- peer.MigrateUpkeeps(h.ctx, admin, []types.UpkeepID{incoming}, h.reg)
		}()

		var failed int

		for i := 0; i < 2; i++ {
			select {
			case err := <-errs:
				if err != nil {
					failed++
					assert.ErrorIs(t, err, types.ErrMigrationNotPermitted)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("migrations did not return")
			}
		}

		assert.Positive(t, failed)

		// every upkeep lives on exactly one registry with its balance
		for _, tc := range []struct {
			id      types.UpkeepID
			balance int64
		}{
			{id: outgoing, balance: 300},
			{id: incoming, balance: 700},
		} {
			onSource := h.reg.GetUpkeep(tc.id).ID == tc.id
			onPeer := peer.GetUpkeep(tc.id).ID == tc.id

			assert.NotEqual(t, onSource, onPeer, "upkeep %s", tc.id)

			holder := h.reg
			if onPeer {
				holder = peer
			}

			assert.Equal(t, tc.balance, holder.GetUpkeep(tc.id).Balance.Int64())
		}

		h.assertSolvent(h.reg)
		h.assertSolvent(peer)
	})
}

func TestReceiveUpkeeps(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.reg.SetPeerRegistryMigrationPermission(h.ctx, owner, peerAddr, types.MigrationIncoming))

	incoming := types.Upkeep{
		ID:                  40,
		Target:              targetAddr,
		ExecuteGas:          executeGas,
		Admin:               admin,
		Balance:             big.NewInt(500),
		AmountSpent:         big.NewInt(7),
		MaxValidBlocknumber: types.UnlimitedBlock,
	}

	encoded, err := transcoder.Encode(Format, []types.Upkeep{incoming})
	require.NoError(t, err)

	assert.ErrorIs(t, h.reg.ReceiveUpkeeps(h.ctx, stranger, encoded), types.ErrMigrationNotPermitted)
	assert.ErrorIs(t, h.reg.ReceiveUpkeeps(h.ctx, peerAddr, []byte{1, 2, 3}), types.ErrInvalidDataLength)

	// balances must arrive before the upkeeps do
	assert.ErrorIs(t, h.reg.ReceiveUpkeeps(h.ctx, peerAddr, encoded), types.ErrInsufficientFunds)

	h.token.Mint(registryAddr, big.NewInt(500))
	require.NoError(t, h.reg.ReceiveUpkeeps(h.ctx, peerAddr, encoded))

	up := h.reg.GetUpkeep(40)
	assert.Equal(t, int64(500), up.Balance.Int64())
	assert.Equal(t, int64(7), up.AmountSpent.Int64())

	h.token.Mint(registryAddr, big.NewInt(500))
	assert.ErrorIs(t, h.reg.ReceiveUpkeeps(h.ctx, peerAddr, encoded), types.ErrDuplicateEntry)

	h.dir.Deploy(targetAddr, &targets.Never{})

	id, err := h.reg.RegisterUpkeep(h.ctx, owner, targetAddr, executeGas, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, UpkeepIDFor(registryAddr, 1), id)
}
