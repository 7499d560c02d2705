package ledger

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/custody"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/nft"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/oracle"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/pricer"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/registry"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/twaml"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/types"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/weekly"
)

const week = 7 * 24 * time.Hour
const maxDuration = 52 * week

var genesis = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	vault  *custody.MemoryVault
	owners *nft.MemoryRegistry
	rates  *oracle.StaticSource
	locks  *registry.LockRegistry
	weeks  *weekly.RewardLedger
	ledger *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		vault:  custody.NewMemoryVault(),
		owners: nft.NewMemoryRegistry(),
		rates:  oracle.NewStaticSource(),
	}
	f.locks = registry.New(f.vault)
	f.weeks = weekly.New(genesis, week)
	params := twaml.Params{
		MaxDuration:  maxDuration,
		DustBps:      10,
		MinFactorBps: 0,
		MaxFactorBps: 5000,
	}
	f.ledger = New(params, f.locks, f.owners, f.weeks, pricer.New(0, sdkmath.OneInt()), f.rates)

	_, err := f.ledger.RegisterPool(1, sdkmath.NewInt(100))
	require.NoError(t, err)

	f.rates.SetRate("usdc_usd", sdkmath.LegacyOneDec())
	f.ledger.SetPaymentToken(types.PaymentTokenConfig{
		Denom: "usdc", Decimals: 0, OracleData: "usdc_usd", Enabled: true,
	})
	return f
}

func (f *fixture) lockAndParticipate(t *testing.T, owner string, amount int64, duration time.Duration, now time.Time) *types.Position {
	t.Helper()
	lock, err := f.locks.CreateLock(owner, 1, "tap", sdkmath.NewInt(amount), duration, now)
	require.NoError(t, err)
	position, err := f.ledger.Participate(owner, lock.ID, now)
	require.NoError(t, err)
	return position
}

func poolCopy(t *testing.T, f *fixture) types.Pool {
	t.Helper()
	pool, err := f.ledger.Pool(1)
	require.NoError(t, err)
	return *pool
}

func epochState(allocation int64) types.EpochState {
	return types.EpochState{
		Epoch:       1,
		Valuation:   sdkmath.LegacyOneDec(),
		Allocations: map[types.PoolID]sdkmath.Int{1: sdkmath.NewInt(allocation)},
	}
}

func TestParticipateMintsPosition(t *testing.T) {
	f := newFixture(t)

	position := f.lockAndParticipate(t, "alice", 1000, maxDuration, genesis)

	require.True(t, position.HasVotingPower)
	// Empty pool, max duration: ceiling factor, votes = 1000 * 5000 / 10000.
	require.Equal(t, sdkmath.NewInt(5000).String(), position.FactorBps.String())
	require.Equal(t, sdkmath.NewInt(500).String(), position.Votes.String())
	require.Equal(t, int64(0), position.EntryWeek)
	require.Equal(t, int64(52), position.ExitWeek)

	pool := poolCopy(t, f)
	require.Equal(t, sdkmath.NewInt(1000).String(), pool.TotalDeposited.String())
	require.Equal(t, int64(1), pool.TotalParticipants)
	require.Equal(t, twaml.MagnitudeScale.String(), pool.CumulativeMagnitude.String())

	owner, err := f.owners.OwnerOf(uint64(position.ID))
	require.NoError(t, err)
	require.Equal(t, "alice", owner)
}

func TestParticipateTwiceFails(t *testing.T) {
	f := newFixture(t)

	lock, err := f.locks.CreateLock("alice", 1, "tap", sdkmath.NewInt(1000), maxDuration, genesis)
	require.NoError(t, err)
	_, err = f.ledger.Participate("alice", lock.ID, genesis)
	require.NoError(t, err)

	_, err = f.ledger.Participate("alice", lock.ID, genesis)
	require.ErrorIs(t, err, ErrAlreadyParticipating)
}

func TestParticipateAuthorization(t *testing.T) {
	f := newFixture(t)

	lock, err := f.locks.CreateLock("alice", 1, "tap", sdkmath.NewInt(1000), maxDuration, genesis)
	require.NoError(t, err)

	_, err = f.ledger.Participate("mallory", lock.ID, genesis)
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestParticipateInactivePool(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.SetPoolActive(1, false))

	lock, err := f.locks.CreateLock("alice", 1, "tap", sdkmath.NewInt(1000), maxDuration, genesis)
	require.NoError(t, err)

	_, err = f.ledger.Participate("alice", lock.ID, genesis)
	require.ErrorIs(t, err, ErrPoolInactive)
}

func TestConservation(t *testing.T) {
	f := newFixture(t)

	p1 := f.lockAndParticipate(t, "alice", 300, maxDuration, genesis)
	p2 := f.lockAndParticipate(t, "bob", 100, 26*week, genesis)
	f.lockAndParticipate(t, "carol", 50, 13*week, genesis)

	pool := poolCopy(t, f)
	require.Equal(t, sdkmath.NewInt(450).String(), pool.TotalDeposited.String())

	require.NoError(t, f.ledger.Exit("alice", p1.ID, genesis.Add(maxDuration)))
	require.NoError(t, f.ledger.Exit("bob", p2.ID, genesis.Add(maxDuration)))

	pool = poolCopy(t, f)
	require.Equal(t, sdkmath.NewInt(50).String(), pool.TotalDeposited.String())
}

func TestParticipateExitRestoresPoolExactly(t *testing.T) {
	f := newFixture(t)

	// Seed the pool so the average is non-trivial.
	f.lockAndParticipate(t, "alice", 1000, maxDuration, genesis)
	f.lockAndParticipate(t, "bob", 800, 26*week, genesis)
	before := poolCopy(t, f)

	p := f.lockAndParticipate(t, "carol", 900, 13*week, genesis)
	mid := poolCopy(t, f)
	require.NotEqual(t, before.CumulativeMagnitude.String(), mid.CumulativeMagnitude.String())

	require.NoError(t, f.ledger.Exit("carol", p.ID, genesis.Add(13*week)))

	after := poolCopy(t, f)
	require.Equal(t, before.TotalDeposited.String(), after.TotalDeposited.String())
	require.Equal(t, before.TotalParticipants, after.TotalParticipants)
	require.Equal(t, before.CumulativeMagnitude.String(), after.CumulativeMagnitude.String())
	require.Equal(t, before.AverageMagnitude.String(), after.AverageMagnitude.String())
}

func TestDustExclusion(t *testing.T) {
	f := newFixture(t)

	f.lockAndParticipate(t, "alice", 1_000_000, maxDuration, genesis)
	before := poolCopy(t, f)

	// 10 bps of 1_000_000 is 1000; anything below is dust.
	dust := f.lockAndParticipate(t, "bob", 999, 26*week, genesis)
	require.False(t, dust.HasVotingPower)
	require.True(t, dust.Votes.IsZero())

	mid := poolCopy(t, f)
	require.Equal(t, before.TotalParticipants, mid.TotalParticipants)
	require.Equal(t, before.CumulativeMagnitude.String(), mid.CumulativeMagnitude.String())
	require.Equal(t, before.AverageMagnitude.String(), mid.AverageMagnitude.String())
	// Dust still counts toward deposits.
	require.Equal(t, before.TotalDeposited.AddRaw(999).String(), mid.TotalDeposited.String())

	require.NoError(t, f.ledger.Exit("bob", dust.ID, genesis.Add(26*week)))
	after := poolCopy(t, f)
	require.Equal(t, before.TotalParticipants, after.TotalParticipants)
	require.Equal(t, before.CumulativeMagnitude.String(), after.CumulativeMagnitude.String())
	require.Equal(t, before.TotalDeposited.String(), after.TotalDeposited.String())
}

func TestExitBeforeExpiryFails(t *testing.T) {
	f := newFixture(t)

	p := f.lockAndParticipate(t, "alice", 1000, 4*week, genesis)

	err := f.ledger.Exit("alice", p.ID, genesis.Add(4*week-time.Second))
	require.ErrorIs(t, err, ErrNotExpired)
}

func TestExitIsIdempotent(t *testing.T) {
	f := newFixture(t)

	p := f.lockAndParticipate(t, "alice", 1000, 4*week, genesis)
	expiry := genesis.Add(4 * week)

	require.NoError(t, f.ledger.Exit("alice", p.ID, expiry))
	// Second exit, and an exit of a nonexistent position, are no-ops.
	require.NoError(t, f.ledger.Exit("alice", p.ID, expiry))
	require.NoError(t, f.ledger.Exit("mallory", 999, expiry))

	pool := poolCopy(t, f)
	require.True(t, pool.TotalDeposited.IsZero())
}

func TestExitAuthorization(t *testing.T) {
	f := newFixture(t)

	p := f.lockAndParticipate(t, "alice", 1000, 4*week, genesis)
	expiry := genesis.Add(4 * week)

	err := f.ledger.Exit("mallory", p.ID, expiry)
	require.ErrorIs(t, err, ErrNotAuthorized)

	// An approved operator may exit on the owner's behalf.
	require.NoError(t, f.owners.Approve(uint64(p.ID), "bob"))
	require.NoError(t, f.ledger.Exit("bob", p.ID, expiry))
}

func TestExerciseThreeToOneScenario(t *testing.T) {
	f := newFixture(t)

	// 3:1 deposits in the same pool. Alice locks at max duration into an
	// empty pool and gets the ceiling discount; Bob enters at the pool
	// average and gets the floor.
	alice := f.lockAndParticipate(t, "alice", 300, maxDuration, genesis)
	bob := f.lockAndParticipate(t, "bob", 100, maxDuration, genesis)
	epoch := epochState(1000)
	now := genesis.Add(week)

	// Alice: entitlement 1000*300/400 = 750 at 50% discount.
	aliceEnt, err := f.ledger.Entitlement(alice.ID, epoch)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(750).String(), aliceEnt.String())

	reward, payment, err := f.ledger.Exercise("alice", alice.ID, epoch, "usdc", sdkmath.ZeroInt(), sdkmath.NewInt(375), now)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(750).String(), reward.String())
	require.Equal(t, sdkmath.NewInt(375).String(), payment.String())

	// Bob: entitlement 250 at 0% discount. Exercise half, then the rest.
	reward, payment, err = f.ledger.Exercise("bob", bob.ID, epoch, "usdc", sdkmath.NewInt(125), sdkmath.NewInt(125), now)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(125).String(), reward.String())
	require.Equal(t, sdkmath.NewInt(125).String(), payment.String())

	position, err := f.ledger.Position(bob.ID)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(125).String(), position.Exercised(1).String())

	reward, _, err = f.ledger.Exercise("bob", bob.ID, epoch, "usdc", sdkmath.ZeroInt(), sdkmath.NewInt(125), now)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(125).String(), reward.String())
	require.Equal(t, sdkmath.NewInt(250).String(), position.Exercised(1).String())

	// A third attempt is beyond the entitlement.
	_, _, err = f.ledger.Exercise("bob", bob.ID, epoch, "usdc", sdkmath.NewInt(1), sdkmath.NewInt(1), now)
	require.ErrorIs(t, err, ErrExceedsEntitlement)
}

func TestExerciseRejectsOverEntitlement(t *testing.T) {
	f := newFixture(t)

	alice := f.lockAndParticipate(t, "alice", 300, maxDuration, genesis)
	epoch := epochState(1000)

	_, _, err := f.ledger.Exercise("alice", alice.ID, epoch, "usdc", sdkmath.NewInt(1001), sdkmath.NewInt(501), genesis.Add(week))
	require.ErrorIs(t, err, ErrExceedsEntitlement)
}

func TestExerciseExactFundingRequired(t *testing.T) {
	f := newFixture(t)

	alice := f.lockAndParticipate(t, "alice", 300, maxDuration, genesis)
	epoch := epochState(1000)
	now := genesis.Add(week)

	// Quote is 375; a fee-on-transfer token delivering 374 fails the whole
	// exercise, and nothing is recorded.
	_, _, err := f.ledger.Exercise("alice", alice.ID, epoch, "usdc", sdkmath.ZeroInt(), sdkmath.NewInt(374), now)
	require.ErrorIs(t, err, ErrPaymentMismatch)

	position, err := f.ledger.Position(alice.ID)
	require.NoError(t, err)
	require.True(t, position.Exercised(1).IsZero())
}

func TestExerciseDisabledPaymentToken(t *testing.T) {
	f := newFixture(t)

	alice := f.lockAndParticipate(t, "alice", 300, maxDuration, genesis)
	epoch := epochState(1000)
	now := genesis.Add(week)

	// Unknown token.
	_, _, err := f.ledger.Exercise("alice", alice.ID, epoch, "dai", sdkmath.NewInt(100), sdkmath.NewInt(50), now)
	require.ErrorIs(t, err, ErrPaymentTokenDisabled)

	// Configured but disabled.
	f.ledger.SetPaymentToken(types.PaymentTokenConfig{Denom: "usdc", OracleData: "usdc_usd", Enabled: false})
	_, _, err = f.ledger.Exercise("alice", alice.ID, epoch, "usdc", sdkmath.NewInt(100), sdkmath.NewInt(50), now)
	require.ErrorIs(t, err, ErrPaymentTokenDisabled)
}

func TestExerciseOracleFailure(t *testing.T) {
	f := newFixture(t)

	alice := f.lockAndParticipate(t, "alice", 300, maxDuration, genesis)
	epoch := epochState(1000)
	now := genesis.Add(week)

	// An unusable feed reads as "token disabled".
	f.rates.SetFailing(true)
	_, _, err := f.ledger.Exercise("alice", alice.ID, epoch, "usdc", sdkmath.NewInt(100), sdkmath.NewInt(50), now)
	require.ErrorIs(t, err, ErrPaymentTokenDisabled)

	// A hard oracle error is an external-dependency failure.
	f.rates.SetFailing(false)
	f.rates.SetErroring(true)
	_, _, err = f.ledger.Exercise("alice", alice.ID, epoch, "usdc", sdkmath.NewInt(100), sdkmath.NewInt(50), now)
	require.ErrorIs(t, err, ErrOracleFailure)
}

func TestExerciseAfterExpiryFails(t *testing.T) {
	f := newFixture(t)

	alice := f.lockAndParticipate(t, "alice", 300, 4*week, genesis)
	epoch := epochState(1000)

	_, _, err := f.ledger.Exercise("alice", alice.ID, epoch, "usdc", sdkmath.NewInt(100), sdkmath.NewInt(50), genesis.Add(4*week))
	require.ErrorIs(t, err, ErrPositionExpired)
}

func TestClaimFlowsThroughWeeklyLedger(t *testing.T) {
	f := newFixture(t)

	// Max-duration lock: votes are exactly 500, so a 500 distribution is
	// claimable without truncation loss.
	alice := f.lockAndParticipate(t, "alice", 1000, maxDuration, genesis)
	require.Equal(t, sdkmath.NewInt(500).String(), alice.Votes.String())

	now := genesis.Add(2 * week)
	f.weeks.AdvanceWeek(now, 10)
	require.NoError(t, f.weeks.DistributeReward(now, "rewardA", sdkmath.NewInt(500)))

	claimable, err := f.ledger.Claimable(alice.ID)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(500).String(), claimable["rewardA"].String())

	// A stranger may not claim.
	_, err = f.ledger.Claim("mallory", alice.ID, "rewardA")
	require.ErrorIs(t, err, ErrNotAuthorized)

	paid, err := f.ledger.Claim("alice", alice.ID, "rewardA")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(500).String(), paid.String())

	// Claims survive exit; a repeat claim yields nothing.
	require.NoError(t, f.ledger.Exit("alice", alice.ID, genesis.Add(maxDuration)))
	amounts, err := f.ledger.ClaimAll("alice", alice.ID)
	require.NoError(t, err)
	require.Empty(t, amounts)
}

func TestClaimByApprovedOperator(t *testing.T) {
	f := newFixture(t)

	alice := f.lockAndParticipate(t, "alice", 1000, maxDuration, genesis)
	require.Equal(t, sdkmath.NewInt(500).String(), alice.Votes.String())

	now := genesis.Add(2 * week)
	f.weeks.AdvanceWeek(now, 10)
	require.NoError(t, f.weeks.DistributeReward(now, "rewardA", sdkmath.NewInt(500)))

	// An approved operator claims like the owner while the token lives.
	require.NoError(t, f.owners.Approve(uint64(alice.ID), "bob"))
	paid, err := f.ledger.Claim("bob", alice.ID, "rewardA")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(500).String(), paid.String())

	now = genesis.Add(3 * week)
	f.weeks.AdvanceWeek(now, 10)
	require.NoError(t, f.weeks.DistributeReward(now, "rewardA", sdkmath.NewInt(1000)))

	// Exit burns the token and the approval with it; the owner of record
	// keeps the residual accrual.
	require.NoError(t, f.ledger.Exit("bob", alice.ID, genesis.Add(maxDuration)))
	_, err = f.ledger.Claim("bob", alice.ID, "rewardA")
	require.ErrorIs(t, err, ErrNotAuthorized)

	paid, err = f.ledger.Claim("alice", alice.ID, "rewardA")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1000).String(), paid.String())
}

func TestRestoreRebuildsState(t *testing.T) {
	f := newFixture(t)

	alice := f.lockAndParticipate(t, "alice", 1000, 4*week, genesis)

	pools := []types.Pool{poolCopy(t, f)}
	positions := []types.Position{*alice}
	tokens := f.ledger.PaymentTokens()

	restored := newFixture(t)
	restored.locks.Restore(f.locks.Locks())
	restored.ledger.Restore(pools, positions, tokens)

	pool, err := restored.ledger.Pool(1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1000).String(), pool.TotalDeposited.String())

	position, err := restored.ledger.Position(alice.ID)
	require.NoError(t, err)
	require.Equal(t, alice.Votes.String(), position.Votes.String())
}
