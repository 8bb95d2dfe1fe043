package main

import (
	"github.com/altsrc/sourced"
	"github.com/altsrc/sourced/example/account"
	"github.com/altsrc/sourced/projection"
)

// Balances is the account balance read model, keyed by account id.
type Balances map[string]int

// BalancesProjection folds account events into the Balances read model.
func BalancesProjection() projection.Definition[Balances] {
	return projection.Definition[Balances]{
		Name: "account-balances",
		EventTypes: []string{
			sourced.TypeName(account.AccountOpened{}),
			sourced.TypeName(account.MoneyDeposited{}),
			sourced.TypeName(account.MoneyWithdrawn{}),
		},
		InitialState: func() Balances {
			return Balances{}
		},
		Fold: func(state Balances, evt sourced.Event) (Balances, error) {
			switch payload := evt.Payload.(type) {
			case account.AccountOpened:
				state[payload.AccountID] = 0
			case account.MoneyDeposited:
				state[evt.AggregateID] += payload.Amount
			case account.MoneyWithdrawn:
				state[evt.AggregateID] -= payload.Amount
			}

			return state, nil
		},
	}
}
