package enum

type CreditKind string

const (
	CreditKindLoanPaydown CreditKind = "loan_paydown"
	CreditKindBacktax     CreditKind = "backtax"
	CreditKindAdjustment  CreditKind = "adjustment"
)
