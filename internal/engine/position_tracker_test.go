package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-api/pkg/errors"
)

func newTestTracker(dust string) (PositionTracker, *fakePositionRepo) {
	repo := newFakePositionRepo()
	tracker := NewPositionTracker(repo, decimal.RequireFromString(dust))
	return tracker, repo
}

func TestPositionTracker_RecordBuy_NewPosition(t *testing.T) {
	tracker, _ := newTestTracker("1")

	position, err := tracker.RecordBuy(context.Background(), 1, "BTC",
		decimal.RequireFromString("2"), decimal.RequireFromString("100"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), position.UserID)
	assert.Equal(t, "BTC", position.CoinID)
	assert.True(t, position.Quantity.Equal(decimal.RequireFromString("2")))
	assert.True(t, position.AvgBuyPrice.Equal(decimal.RequireFromString("100")))
}

func TestPositionTracker_RecordBuy_WeightedAverage(t *testing.T) {
	tracker, _ := newTestTracker("1")
	ctx := context.Background()

	_, err := tracker.RecordBuy(ctx, 1, "BTC",
		decimal.RequireFromString("2"), decimal.RequireFromString("100"))
	require.NoError(t, err)

	position, err := tracker.RecordBuy(ctx, 1, "BTC",
		decimal.RequireFromString("3"), decimal.RequireFromString("200"))
	require.NoError(t, err)

	// (2*100 + 3*200) / 5 = 160
	assert.True(t, position.Quantity.Equal(decimal.RequireFromString("5")))
	assert.True(t, position.AvgBuyPrice.Equal(decimal.RequireFromString("160")),
		"expected avg 160, got %s", position.AvgBuyPrice)
}

func TestPositionTracker_RecordBuy_InvalidInput(t *testing.T) {
	tracker, _ := newTestTracker("1")
	ctx := context.Background()

	_, err := tracker.RecordBuy(ctx, 1, "BTC", decimal.Zero, decimal.RequireFromString("100"))
	assert.Equal(t, errors.ErrInvalidQuantity, err)

	_, err = tracker.RecordBuy(ctx, 1, "BTC", decimal.RequireFromString("1"), decimal.Zero)
	assert.Equal(t, errors.ErrInvalidAmount, err)
}

func TestPositionTracker_RecordSell_KeepsCostBasis(t *testing.T) {
	tracker, _ := newTestTracker("1")
	ctx := context.Background()

	_, err := tracker.RecordBuy(ctx, 1, "ETH",
		decimal.RequireFromString("10"), decimal.RequireFromString("150"))
	require.NoError(t, err)

	result, err := tracker.RecordSell(ctx, 1, "ETH",
		decimal.RequireFromString("4"), decimal.RequireFromString("300"))
	require.NoError(t, err)

	require.False(t, result.Closed)
	require.NotNil(t, result.Remaining)
	assert.True(t, result.Remaining.Quantity.Equal(decimal.RequireFromString("6")))
	// Selling never reprices what remains.
	assert.True(t, result.Remaining.AvgBuyPrice.Equal(decimal.RequireFromString("150")))
}

func TestPositionTracker_RecordSell_InsufficientQuantity(t *testing.T) {
	tracker, repo := newTestTracker("1")
	ctx := context.Background()

	_, err := tracker.RecordBuy(ctx, 1, "ETH",
		decimal.RequireFromString("3"), decimal.RequireFromString("100"))
	require.NoError(t, err)

	_, err = tracker.RecordSell(ctx, 1, "ETH",
		decimal.RequireFromString("3.0001"), decimal.RequireFromString("100"))
	assert.Equal(t, errors.ErrInsufficientQuantity, err)

	// Position unchanged after the rejection.
	position, err := repo.Get(ctx, 1, "ETH")
	require.NoError(t, err)
	assert.True(t, position.Quantity.Equal(decimal.RequireFromString("3")))
}

func TestPositionTracker_RecordSell_UnknownPosition(t *testing.T) {
	tracker, _ := newTestTracker("1")

	_, err := tracker.RecordSell(context.Background(), 1, "DOGE",
		decimal.RequireFromString("1"), decimal.RequireFromString("0.1"))
	assert.Equal(t, errors.ErrPositionNotFound, err)
}

func TestPositionTracker_RecordSell_ClosesAtZero(t *testing.T) {
	tracker, repo := newTestTracker("1")
	ctx := context.Background()

	_, err := tracker.RecordBuy(ctx, 1, "BTC",
		decimal.RequireFromString("2"), decimal.RequireFromString("100"))
	require.NoError(t, err)

	result, err := tracker.RecordSell(ctx, 1, "BTC",
		decimal.RequireFromString("2"), decimal.RequireFromString("120"))
	require.NoError(t, err)

	assert.True(t, result.Closed)
	assert.Nil(t, result.Remaining)

	_, err = repo.Get(ctx, 1, "BTC")
	assert.Equal(t, errors.ErrPositionNotFound, err)
}

func TestPositionTracker_RecordSell_ClosesDustResidue(t *testing.T) {
	tracker, repo := newTestTracker("1")
	ctx := context.Background()

	_, err := tracker.RecordBuy(ctx, 1, "BTC",
		decimal.RequireFromString("1"), decimal.RequireFromString("50000"))
	require.NoError(t, err)

	// 0.00001 BTC left at 50000 is worth 0.50, under the dust threshold.
	result, err := tracker.RecordSell(ctx, 1, "BTC",
		decimal.RequireFromString("0.99999"), decimal.RequireFromString("50000"))
	require.NoError(t, err)

	assert.True(t, result.Closed)
	_, err = repo.Get(ctx, 1, "BTC")
	assert.Equal(t, errors.ErrPositionNotFound, err)
}

func TestPositionTracker_RecordSell_KeepsAboveDust(t *testing.T) {
	tracker, _ := newTestTracker("1")
	ctx := context.Background()

	_, err := tracker.RecordBuy(ctx, 1, "BTC",
		decimal.RequireFromString("1"), decimal.RequireFromString("50000"))
	require.NoError(t, err)

	// 0.001 BTC at 50000 is worth 50, well above the threshold.
	result, err := tracker.RecordSell(ctx, 1, "BTC",
		decimal.RequireFromString("0.999"), decimal.RequireFromString("50000"))
	require.NoError(t, err)

	assert.False(t, result.Closed)
	require.NotNil(t, result.Remaining)
	assert.True(t, result.Remaining.Quantity.Equal(decimal.RequireFromString("0.001")))
}

func TestPositionTracker_ListPositions(t *testing.T) {
	tracker, _ := newTestTracker("1")
	ctx := context.Background()

	_, err := tracker.RecordBuy(ctx, 1, "ETH", decimal.RequireFromString("1"), decimal.RequireFromString("100"))
	require.NoError(t, err)
	_, err = tracker.RecordBuy(ctx, 1, "BTC", decimal.RequireFromString("1"), decimal.RequireFromString("100"))
	require.NoError(t, err)
	_, err = tracker.RecordBuy(ctx, 2, "BTC", decimal.RequireFromString("1"), decimal.RequireFromString("100"))
	require.NoError(t, err)

	positions, err := tracker.ListPositions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "BTC", positions[0].CoinID)
	assert.Equal(t, "ETH", positions[1].CoinID)
}
