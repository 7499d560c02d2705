package engine

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/custody"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/ledger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/nft"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/oracle"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/pricer"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/registry"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/twaml"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/types"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/weekly"

	scheduler "github.com/Tapioca-DAO/tap-token-sub000/internal/epoch"
)

const week = 7 * 24 * time.Hour
const maxDuration = 52 * week

var genesis = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// memoryStore keeps only the latest snapshot, like the database would.
type memoryStore struct {
	latest *types.EngineSnapshot
	saves  int
	claims int
}

func (s *memoryStore) SaveSnapshot(snapshot types.EngineSnapshot) error {
	copied := snapshot
	s.latest = &copied
	s.saves++
	return nil
}

func (s *memoryStore) LatestSnapshot() (*types.EngineSnapshot, error) {
	return s.latest, nil
}

func (s *memoryStore) RecordClaim(types.PositionID, string, string, sdkmath.Int) error {
	s.claims++
	return nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newEngine(t *testing.T, store Store) (*Engine, *testClock, *oracle.StaticSource) {
	t.Helper()
	clock := &testClock{now: genesis}
	vault := custody.NewMemoryVault()
	owners := nft.NewMemoryRegistry()
	rates := oracle.NewStaticSource()
	rates.SetRate("reward_usd", sdkmath.LegacyNewDec(4))
	rates.SetRate("usdc_usd", sdkmath.LegacyOneDec())

	locks := registry.New(vault)
	weeks := weekly.New(genesis, week)
	params := twaml.Params{MaxDuration: maxDuration, DustBps: 10, MinFactorBps: 0, MaxFactorBps: 5000}
	posLedger := ledger.New(params, locks, owners, weeks, pricer.New(0, sdkmath.OneInt()), rates)
	epochs := scheduler.New(week, sdkmath.NewInt(1000), rates, "reward_usd", genesis)

	return New(locks, posLedger, epochs, weeks, store, 52, clock.Now), clock, rates
}

func TestEngineLifecycle(t *testing.T) {
	eng, clock, _ := newEngine(t, nil)

	_, err := eng.RegisterPool(1, sdkmath.NewInt(100))
	require.NoError(t, err)
	eng.SetPaymentToken(types.PaymentTokenConfig{Denom: "usdc", Decimals: 0, OracleData: "usdc_usd", Enabled: true})

	lock, err := eng.Lock("alice", 1, "tap", sdkmath.NewInt(1000), maxDuration)
	require.NoError(t, err)
	position, err := eng.Participate("alice", lock.ID)
	require.NoError(t, err)
	// Max duration into an empty pool: ceiling factor, votes = 1000 * 5000 / 10000.
	require.Equal(t, sdkmath.NewInt(500).String(), position.Votes.String())

	// A week in: the epoch opens and the weekly ledger catches up.
	clock.now = genesis.Add(week)
	require.Equal(t, int64(1), eng.AdvanceWeek())
	advanced, err := eng.NewEpoch()
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, uint64(1), eng.EpochState().Epoch)

	// Distribute and claim through the serialized surface.
	require.NoError(t, eng.DistributeReward("rewardA", sdkmath.NewInt(500)))
	claimable, err := eng.Claimable(position.ID)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(500).String(), claimable["rewardA"].String())

	paid, err := eng.Claim("alice", position.ID, "rewardA")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(500).String(), paid.String())

	// Exercise against the epoch allocation, then exit at expiry. The full
	// entitlement of 1000 at the $4 epoch valuation and 50% discount costs
	// 2000 of the $1 payment token.
	reward, payment, err := eng.Exercise("alice", position.ID, "usdc", sdkmath.ZeroInt(), sdkmath.NewInt(2000))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1000).String(), reward.String())
	require.Equal(t, sdkmath.NewInt(2000).String(), payment.String())

	clock.now = genesis.Add(maxDuration)
	require.NoError(t, eng.Exit("alice", position.ID))

	pool, err := eng.Pool(1)
	require.NoError(t, err)
	require.True(t, pool.TotalDeposited.IsZero())
}

func TestEngineEarlyEpochIsNoop(t *testing.T) {
	eng, _, _ := newEngine(t, nil)
	_, err := eng.RegisterPool(1, sdkmath.NewInt(100))
	require.NoError(t, err)

	advanced, err := eng.NewEpoch()
	require.NoError(t, err)
	require.False(t, advanced)
}

func TestEnginePersistsAndRecovers(t *testing.T) {
	store := &memoryStore{}
	eng, clock, _ := newEngine(t, store)

	_, err := eng.RegisterPool(1, sdkmath.NewInt(100))
	require.NoError(t, err)
	lock, err := eng.Lock("alice", 1, "tap", sdkmath.NewInt(1000), maxDuration)
	require.NoError(t, err)
	position, err := eng.Participate("alice", lock.ID)
	require.NoError(t, err)

	clock.now = genesis.Add(week)
	eng.AdvanceWeek()
	_, err = eng.NewEpoch()
	require.NoError(t, err)
	require.NoError(t, eng.DistributeReward("rewardA", sdkmath.NewInt(500)))
	require.Greater(t, store.saves, 0)

	// A fresh engine over the same store picks up where the first left off.
	restored, rclock, _ := newEngine(t, store)
	rclock.now = clock.now
	require.NoError(t, restored.RecoverFromStore())

	pool, err := restored.Pool(1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1000).String(), pool.TotalDeposited.String())
	require.Equal(t, uint64(1), restored.EpochState().Epoch)

	claimable, err := restored.Claimable(position.ID)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(500).String(), claimable["rewardA"].String())

	paid, err := restored.Claim("alice", position.ID, "rewardA")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(500).String(), paid.String())
	require.Equal(t, 1, store.claims)

	_, lastProcessed, activeVotes := restored.WeeklyStatus()
	require.Equal(t, int64(1), lastProcessed)
	require.Equal(t, position.Votes.String(), activeVotes.String())
}

func TestEngineLockRequiresRegisteredPool(t *testing.T) {
	eng, _, _ := newEngine(t, nil)

	_, err := eng.Lock("alice", 9, "tap", sdkmath.NewInt(1000), week)
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)
}

func TestEngineLockRequiresActivePool(t *testing.T) {
	eng, _, _ := newEngine(t, nil)

	_, err := eng.RegisterPool(1, sdkmath.NewInt(100))
	require.NoError(t, err)
	require.NoError(t, eng.SetPoolActive(1, false))

	_, err = eng.Lock("alice", 1, "tap", sdkmath.NewInt(1000), week)
	require.ErrorIs(t, err, ledger.ErrPoolInactive)

	require.NoError(t, eng.SetPoolActive(1, true))
	_, err = eng.Lock("alice", 1, "tap", sdkmath.NewInt(1000), week)
	require.NoError(t, err)
}
