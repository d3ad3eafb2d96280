package domain

import "time"

// BalanceRecordType enumerates ledger entry categories.
type BalanceRecordType string

const (
	BalanceConsume  BalanceRecordType = "consume"
	BalanceRecharge BalanceRecordType = "recharge"
	BalanceRefund   BalanceRecordType = "refund"
	BalanceInvite   BalanceRecordType = "invite"
	BalanceRedeem   BalanceRecordType = "redeem"
)

// BalanceRecord is one immutable ledger entry. Amount is signed (negative for
// consumption) and Balance is the resulting balance after the mutation, so
// the running sum of Amount for a user always reconciles with Balance.
type BalanceRecord struct {
	ID          string
	UserID      string
	Type        BalanceRecordType
	Amount      int
	Balance     int
	Description string
	RelatedID   string
	CreatedAt   time.Time
}
