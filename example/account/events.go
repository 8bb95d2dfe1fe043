package account

// AccountOpened is recorded when a new account is opened.
type AccountOpened struct {
	AccountID string
	Holder    string
}

// MoneyDeposited is recorded when money is deposited into an account.
type MoneyDeposited struct {
	Amount int
}

// MoneyWithdrawn is recorded when money is withdrawn from an account.
type MoneyWithdrawn struct {
	Amount int
}

// AccountClosed is recorded when an account is closed.
type AccountClosed struct {
	Reason string
}

// Payloads lists every account event payload, used to declare repository
// handlers and encoder types.
func Payloads() []any {
	return []any{
		AccountOpened{},
		MoneyDeposited{},
		MoneyWithdrawn{},
		AccountClosed{},
	}
}
