package account_test

import (
	"testing"

	"github.com/altsrc/sourced"
	"github.com/altsrc/sourced/example/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenShouldRecordAccountOpened(t *testing.T) {
	acc := account.Open("acc-1", "Jane Doe")

	events := acc.PendingEvents()

	require.Len(t, events, 1)

	assert.Equal(t, "AccountOpened", events[0].Type)
	assert.Equal(t, "acc-1", events[0].AggregateID)
	assert.Equal(t, uint64(1), events[0].Version)
	assert.Equal(t, account.AccountOpened{AccountID: "acc-1", Holder: "Jane Doe"}, events[0].Payload)

	assert.Equal(t, "acc-1", acc.StringID())
	assert.Zero(t, acc.Balance())
}

func TestDepositAndWithdrawShouldTrackBalance(t *testing.T) {
	acc := account.Open("acc-1", "Jane Doe")

	require.NoError(t, acc.Deposit(100))
	require.NoError(t, acc.Withdraw(30))

	assert.Equal(t, 70, acc.Balance())
	assert.Len(t, acc.PendingEvents(), 3)
}

func TestDepositShouldRejectNonPositiveAmount(t *testing.T) {
	acc := account.Open("acc-1", "Jane Doe")

	assert.Error(t, acc.Deposit(0))
	assert.Error(t, acc.Deposit(-5))
}

func TestWithdrawShouldRejectInsufficientFunds(t *testing.T) {
	acc := account.Open("acc-1", "Jane Doe")

	require.NoError(t, acc.Deposit(10))

	assert.Error(t, acc.Withdraw(11))
	assert.Equal(t, 10, acc.Balance())
}

func TestClosedAccountShouldRejectCommands(t *testing.T) {
	acc := account.Open("acc-1", "Jane Doe")

	require.NoError(t, acc.Close("dormant"))

	assert.Error(t, acc.Deposit(10))
	assert.Error(t, acc.Withdraw(10))

	require.NoError(t, acc.Close("again"), "closing twice is a no-op")
	assert.Len(t, acc.PendingEvents(), 2, "only open and the first close are recorded")
}

func TestBlankShouldRehydrateFromHistory(t *testing.T) {
	acc := account.Blank()

	acc.Replay(
		sourced.NewEvent("acc-1", 1, account.AccountOpened{AccountID: "acc-1", Holder: "Jane Doe"}),
		sourced.NewEvent("acc-1", 2, account.MoneyDeposited{Amount: 100}),
		sourced.NewEvent("acc-1", 3, account.MoneyWithdrawn{Amount: 25}),
	)

	assert.Equal(t, "acc-1", acc.StringID())
	assert.Equal(t, 75, acc.Balance())
	assert.Equal(t, uint64(3), acc.InitialVersion())
	assert.Empty(t, acc.PendingEvents())
}
