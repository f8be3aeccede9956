// Package seed provisions the starter chart of accounts for a new tenant.
package seed

import (
	"context"
	"errors"
	"fmt"

	accountdomain "github.com/smallbiznis/bookkeeping/internal/account/domain"
	"go.uber.org/zap"
)

type defaultAccount struct {
	Code    string
	Name    string
	Type    accountdomain.AccountType
	Subtype accountdomain.AccountSubtype
	Parent  string
}

// DefaultChart is created in order, so parents precede their children.
var DefaultChart = []defaultAccount{
	{"1000", "Current Assets", accountdomain.AccountTypeAsset, "", ""},
	{"1010", "Cash", accountdomain.AccountTypeAsset, accountdomain.SubtypeCash, "1000"},
	{"1020", "Bank", accountdomain.AccountTypeAsset, accountdomain.SubtypeBank, "1000"},
	{"1100", "Accounts Receivable", accountdomain.AccountTypeAsset, accountdomain.SubtypeAccountsReceivable, "1000"},
	{"1110", "Allowance for Doubtful Accounts", accountdomain.AccountTypeAsset, accountdomain.SubtypeAllowanceForDoubtfulAccounts, "1000"},
	{"1200", "Inventory", accountdomain.AccountTypeAsset, accountdomain.SubtypeInventory, "1000"},
	{"1500", "Fixed Assets", accountdomain.AccountTypeAsset, accountdomain.SubtypeFixedAsset, ""},
	{"1510", "Accumulated Depreciation", accountdomain.AccountTypeAsset, accountdomain.SubtypeAccumulatedDepreciation, "1500"},

	{"2000", "Accounts Payable", accountdomain.AccountTypeLiability, accountdomain.SubtypeAccountsPayable, ""},
	{"2100", "Tax Payable", accountdomain.AccountTypeLiability, accountdomain.SubtypeTaxPayable, ""},

	{"3000", "Owner's Equity", accountdomain.AccountTypeEquity, accountdomain.SubtypeOwnersEquity, ""},
	{"3100", "Retained Earnings", accountdomain.AccountTypeEquity, accountdomain.SubtypeRetainedEarnings, ""},
	{"3200", "Owner's Drawings", accountdomain.AccountTypeEquity, accountdomain.SubtypeDrawings, ""},

	{"4000", "Sales", accountdomain.AccountTypeRevenue, accountdomain.SubtypeSales, ""},
	{"4010", "Sales Returns", accountdomain.AccountTypeRevenue, accountdomain.SubtypeSalesReturns, "4000"},
	{"4020", "Sales Discounts", accountdomain.AccountTypeRevenue, accountdomain.SubtypeSalesDiscounts, "4000"},

	{"5000", "Cost of Goods Sold", accountdomain.AccountTypeExpense, accountdomain.SubtypeCostOfGoodsSold, ""},
	{"6000", "Operating Expenses", accountdomain.AccountTypeExpense, accountdomain.SubtypeOperating, ""},
}

// EnsureDefaultAccounts creates every DefaultChart account missing for the tenant in ctx.
// Existing codes are left untouched, so running it twice is harmless. It returns the
// number of accounts created.
func EnsureDefaultAccounts(ctx context.Context, svc accountdomain.Service, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}

	ids := make(map[string]string, len(DefaultChart))
	created := 0
	for _, a := range DefaultChart {
		existing, err := svc.GetByCode(ctx, a.Code)
		switch {
		case err == nil:
			ids[a.Code] = existing.ID.String()
			continue
		case !errors.Is(err, accountdomain.ErrAccountNotFound):
			return created, fmt.Errorf("lookup %s: %w", a.Code, err)
		}

		account, err := svc.Create(ctx, accountdomain.CreateAccountRequest{
			Code:     a.Code,
			Name:     a.Name,
			Type:     a.Type,
			Subtype:  a.Subtype,
			ParentID: ids[a.Parent],
		})
		if err != nil {
			return created, fmt.Errorf("create %s: %w", a.Code, err)
		}
		ids[a.Code] = account.ID.String()
		created++
		log.Debug("seeded account", zap.String("code", a.Code), zap.String("account_id", account.ID.String()))
	}

	return created, nil
}
