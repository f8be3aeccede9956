package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func TestCalculate(t *testing.T) {
	tax := Tax{Rate: dec("7.5")}
	assertDecimal(t, "75", Calculate(tax, dec("1000")))
	assertDecimal(t, "0", Calculate(tax, decimal.Zero))
	assertDecimal(t, "0", Calculate(Tax{Rate: decimal.Zero}, dec("1000")))
}

func TestCalculateGroupCompoundFirst(t *testing.T) {
	taxes := []Tax{
		{ID: 1, Code: "A", Rate: dec("5"), Type: TaxTypeCompound},
		{ID: 2, Code: "B", Rate: dec("10"), Type: TaxTypeNormal},
	}

	result := CalculateGroup(taxes, dec("1000"))
	require.Len(t, result.Lines, 2)
	assertDecimal(t, "50", result.Lines[0].Amount)
	assertDecimal(t, "1000", result.Lines[0].TaxableBase)
	assertDecimal(t, "105", result.Lines[1].Amount)
	assertDecimal(t, "1050", result.Lines[1].TaxableBase)
	assertDecimal(t, "155", result.TotalTax)
}

func TestCalculateGroupOrderMatters(t *testing.T) {
	taxes := []Tax{
		{ID: 2, Code: "B", Rate: dec("10"), Type: TaxTypeNormal},
		{ID: 1, Code: "A", Rate: dec("5"), Type: TaxTypeCompound},
	}

	result := CalculateGroup(taxes, dec("1000"))
	assertDecimal(t, "100", result.Lines[0].Amount)
	assertDecimal(t, "50", result.Lines[1].Amount)
	assertDecimal(t, "150", result.TotalTax)
}

func TestCalculateGroupNormalTaxesNeverInflateBase(t *testing.T) {
	taxes := []Tax{
		{ID: 1, Rate: dec("5"), Type: TaxTypeNormal},
		{ID: 2, Rate: dec("7"), Type: TaxTypeCompound},
		{ID: 3, Rate: dec("10"), Type: TaxTypeWithholding},
	}

	result := CalculateGroup(taxes, dec("1000"))
	assertDecimal(t, "50", result.Lines[0].Amount)
	assertDecimal(t, "70", result.Lines[1].Amount)
	assertDecimal(t, "1070", result.Lines[2].TaxableBase)
	assertDecimal(t, "107", result.Lines[2].Amount)
	assertDecimal(t, "227", result.TotalTax)
}

func TestCalculateGroupEmpty(t *testing.T) {
	result := CalculateGroup(nil, dec("1000"))
	assert.Empty(t, result.Lines)
	assertDecimal(t, "0", result.TotalTax)
}

func TestEffectiveRate(t *testing.T) {
	simple := []Tax{
		{Rate: dec("5"), Type: TaxTypeNormal},
		{Rate: dec("7.25"), Type: TaxTypeNormal},
	}
	assertDecimal(t, "12.25", EffectiveRate(simple))

	compound := []Tax{
		{Rate: dec("5"), Type: TaxTypeCompound},
		{Rate: dec("10"), Type: TaxTypeNormal},
	}
	assertDecimal(t, "15.5", EffectiveRate(compound))

	assertDecimal(t, "0", EffectiveRate(nil))
}

func TestTaxValidate(t *testing.T) {
	valid := Tax{Code: "VAT", Name: "VAT", Rate: dec("20"), Type: TaxTypeNormal}
	assert.NoError(t, valid.Validate())

	tooHigh := valid
	tooHigh.Rate = dec("100.01")
	assert.ErrorIs(t, tooHigh.Validate(), ErrInvalidTaxRate)

	negative := valid
	negative.Rate = dec("-1")
	assert.ErrorIs(t, negative.Validate(), ErrInvalidTaxRate)

	boundary := valid
	boundary.Rate = dec("100")
	assert.NoError(t, boundary.Validate())

	tooPrecise := valid
	tooPrecise.Rate = dec("7.12345")
	assert.ErrorIs(t, tooPrecise.Validate(), ErrInvalidTaxRate)

	trailingZeros := valid
	trailingZeros.Rate = dec("7.123400")
	assert.NoError(t, trailingZeros.Validate())

	badType := valid
	badType.Type = "flat"
	assert.ErrorIs(t, badType.Validate(), ErrInvalidTaxType)

	noCode := valid
	noCode.Code = " "
	assert.ErrorIs(t, noCode.Validate(), ErrInvalidTaxCode)
}
