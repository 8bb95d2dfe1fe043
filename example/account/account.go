// Package account is an example bounded context showing how aggregates,
// the repository and projections are wired together.
package account

import (
	"fmt"

	"github.com/altsrc/sourced/aggregate"
)

// ID represents an account id.
type ID string

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// Account is an event sourced account aggregate.
type Account struct {
	aggregate.Root[ID]

	balance int
	closed  bool
}

// Blank returns a bound, zero-state account used for rehydration via
// aggregate.Load.
func Blank() *Account {
	return newAccount("")
}

// Open opens a new account for the holder.
func Open(id ID, holder string) *Account {
	a := newAccount(id)

	a.Apply(AccountOpened{
		AccountID: id.String(),
		Holder:    holder,
	})

	return a
}

func newAccount(id ID) *Account {
	var a Account

	a.Bind(id,
		aggregate.When(a.onOpened),
		aggregate.When(a.onDeposited),
		aggregate.When(a.onWithdrawn),
		aggregate.When(a.onClosed),
	)

	return &a
}

// Balance returns the current balance.
func (a *Account) Balance() int { return a.balance }

// Deposit adds money to the account.
func (a *Account) Deposit(amount int) error {
	if a.closed {
		return fmt.Errorf("account %s is closed", a.StringID())
	}

	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}

	a.Apply(MoneyDeposited{Amount: amount})

	return nil
}

// Withdraw removes money from the account.
func (a *Account) Withdraw(amount int) error {
	if a.closed {
		return fmt.Errorf("account %s is closed", a.StringID())
	}

	if amount > a.balance {
		return fmt.Errorf("insufficient funds: balance %d, requested %d", a.balance, amount)
	}

	a.Apply(MoneyWithdrawn{Amount: amount})

	return nil
}

// Close closes the account.
func (a *Account) Close(reason string) error {
	if a.closed {
		return nil
	}

	a.Apply(AccountClosed{Reason: reason})

	return nil
}

func (a *Account) onOpened(evt AccountOpened) {
	a.SetID(ID(evt.AccountID))
}

func (a *Account) onDeposited(evt MoneyDeposited) {
	a.balance += evt.Amount
}

func (a *Account) onWithdrawn(evt MoneyWithdrawn) {
	a.balance -= evt.Amount
}

func (a *Account) onClosed(AccountClosed) {
	a.closed = true
}
