package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places stored for balances and line amounts.
const AmountScale int32 = 4

// FitsScale reports whether d can be stored with places fractional digits unchanged.
func FitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Round(places))
}

// AccountType is the top-level classification of a chart-of-accounts entry.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	default:
		return false
	}
}

// AccountSubtype refines an AccountType. Contra subtypes reverse the normal balance side.
type AccountSubtype string

const (
	// Assets
	SubtypeCash                         AccountSubtype = "cash"
	SubtypeBank                         AccountSubtype = "bank"
	SubtypeAccountsReceivable           AccountSubtype = "accounts_receivable"
	SubtypeInventory                    AccountSubtype = "inventory"
	SubtypeFixedAsset                   AccountSubtype = "fixed_asset"
	SubtypeAccumulatedDepreciation      AccountSubtype = "accumulated_depreciation"
	SubtypeAllowanceForDoubtfulAccounts AccountSubtype = "allowance_for_doubtful_accounts"

	// Liabilities
	SubtypeAccountsPayable AccountSubtype = "accounts_payable"
	SubtypeTaxPayable      AccountSubtype = "tax_payable"

	// Equity
	SubtypeOwnersEquity     AccountSubtype = "owners_equity"
	SubtypeRetainedEarnings AccountSubtype = "retained_earnings"
	SubtypeDrawings         AccountSubtype = "drawings"

	// Revenue
	SubtypeSales          AccountSubtype = "sales"
	SubtypeSalesReturns   AccountSubtype = "sales_returns"
	SubtypeSalesDiscounts AccountSubtype = "sales_discounts"

	// Expenses
	SubtypeCostOfGoodsSold AccountSubtype = "cost_of_goods_sold"
	SubtypeOperating       AccountSubtype = "operating_expense"
)

// contraSubtypes maps each contra subtype to the normal side it carries.
var contraSubtypes = map[AccountSubtype]bool{
	SubtypeAccumulatedDepreciation:      false,
	SubtypeAllowanceForDoubtfulAccounts: false,
	SubtypeSalesReturns:                 true,
	SubtypeSalesDiscounts:               true,
	SubtypeDrawings:                     true,
}

// IsContra reports whether s flips the normal balance side of its type.
func (s AccountSubtype) IsContra() bool {
	_, ok := contraSubtypes[s]
	return ok
}

// ChangeType is the direction of a single balance movement.
type ChangeType string

const (
	ChangeTypeDebit  ChangeType = "debit"
	ChangeTypeCredit ChangeType = "credit"
)

// Account is a chart-of-accounts entry scoped to a tenant.
type Account struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_accounts_tenant_code,priority:1" json:"tenant_id"`
	Code           string          `gorm:"type:text;not null;uniqueIndex:ux_accounts_tenant_code,priority:2" json:"code"`
	Name           string          `gorm:"type:text;not null" json:"name"`
	Type           AccountType     `gorm:"type:text;not null;index" json:"type"`
	Subtype        AccountSubtype  `gorm:"type:text" json:"subtype,omitempty"`
	CurrentBalance decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"current_balance"`
	OpeningBalance decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"opening_balance"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	ParentID       *snowflake.ID   `gorm:"index" json:"parent_id,omitempty"`
	Version        int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// IsDebitNormal reports whether a debit increases the account balance.
func (a *Account) IsDebitNormal() bool {
	if side, ok := contraSubtypes[AccountSubtype(strings.TrimSpace(string(a.Subtype)))]; ok {
		return side
	}
	switch a.Type {
	case AccountTypeAsset, AccountTypeExpense:
		return true
	default:
		return false
	}
}

// ApplyChange returns the balance that results from moving amount in the given direction.
// It has no side effects. A negative amount or unknown change type is a programming error
// and panics.
func (a *Account) ApplyChange(amount decimal.Decimal, changeType ChangeType) decimal.Decimal {
	if amount.IsNegative() {
		panic(fmt.Sprintf("account %s: negative change amount %s", a.ID, amount))
	}

	var increase bool
	switch changeType {
	case ChangeTypeDebit:
		increase = a.IsDebitNormal()
	case ChangeTypeCredit:
		increase = !a.IsDebitNormal()
	default:
		panic(fmt.Sprintf("account %s: unknown change type %q", a.ID, changeType))
	}

	if increase {
		return a.CurrentBalance.Add(amount)
	}
	return a.CurrentBalance.Sub(amount)
}
