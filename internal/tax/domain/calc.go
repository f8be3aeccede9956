package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EffectiveRateSampleBase is the base used to express a compounding group as one rate.
var EffectiveRateSampleBase = decimal.NewFromInt(100)

// Calculate returns base * rate / 100.
func Calculate(tax Tax, base decimal.Decimal) decimal.Decimal {
	return base.Mul(tax.Rate).Div(hundred)
}

// GroupLine is the contribution of one tax within a group calculation.
type GroupLine struct {
	TaxID       snowflake.ID    `json:"tax_id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Type        TaxType         `json:"type"`
	Rate        decimal.Decimal `json:"rate"`
	TaxableBase decimal.Decimal `json:"taxable_base"`
	Amount      decimal.Decimal `json:"amount"`
}

// GroupResult is the outcome of CalculateGroup.
type GroupResult struct {
	Lines    []GroupLine     `json:"lines"`
	TotalTax decimal.Decimal `json:"total_tax"`
}

// CalculateGroup applies taxes in the given order. Every tax is computed on the running
// base; a compound tax adds its own amount to that base for the taxes after it.
func CalculateGroup(taxes []Tax, base decimal.Decimal) GroupResult {
	current := base
	result := GroupResult{
		Lines:    make([]GroupLine, 0, len(taxes)),
		TotalTax: decimal.Zero,
	}
	for _, tax := range taxes {
		amount := Calculate(tax, current)
		result.Lines = append(result.Lines, GroupLine{
			TaxID:       tax.ID,
			Code:        tax.Code,
			Name:        tax.Name,
			Type:        tax.Type,
			Rate:        tax.Rate,
			TaxableBase: current,
			Amount:      amount,
		})
		result.TotalTax = result.TotalTax.Add(amount)
		if tax.Type == TaxTypeCompound {
			current = current.Add(amount)
		}
	}
	return result
}

// EffectiveRate expresses an ordered group as a single percentage. Without compound
// members it is the plain sum of rates; otherwise it is measured on a sample base.
func EffectiveRate(taxes []Tax) decimal.Decimal {
	compound := false
	sum := decimal.Zero
	for _, tax := range taxes {
		sum = sum.Add(tax.Rate)
		if tax.Type == TaxTypeCompound {
			compound = true
		}
	}
	if !compound {
		return sum
	}

	result := CalculateGroup(taxes, EffectiveRateSampleBase)
	return result.TotalTax.Div(EffectiveRateSampleBase).Mul(hundred)
}
