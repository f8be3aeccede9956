package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/bookkeeping/internal/tax/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// amountScale matches the numeric(20,4) storage of monetary columns.
const amountScale = 4

const (
	modeSingle = "single"
	modeGroup  = "group"
)

// Calculate computes tax for an amount against a single tax or an ordered group. When a
// contact is given, taxes covered by its effective exemptions are removed before stacking.
// Amounts are rounded to four decimal places only in the returned breakdown.
//
// A single inactive tax fails with ErrTaxInactive. Inactive members of a group are left
// out of the stack instead and listed in the result's Skipped entries, so a group keeps
// computing while one of its rates is retired.
func (s *Service) Calculate(ctx context.Context, req taxdomain.CalculateRequest) (taxdomain.CalculationResult, error) {
	ctx, span := otel.Tracer("bookkeeping/tax").Start(ctx, "tax.calculate")
	defer span.End()

	result, mode, err := s.calculate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return taxdomain.CalculationResult{}, err
	}

	span.SetAttributes(
		attribute.String("tax.mode", mode),
		attribute.Int("tax.lines", len(result.Lines)),
		attribute.Int("tax.exempted", len(result.Exempted)),
		attribute.Int("tax.skipped", len(result.Skipped)),
	)
	s.obsMetrics.RecordTaxCalculation(ctx, mode, len(result.Exempted) > 0)
	return result, nil
}

func (s *Service) calculate(ctx context.Context, req taxdomain.CalculateRequest) (taxdomain.CalculationResult, string, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.CalculationResult{}, "", err
	}
	if req.Amount.IsNegative() {
		return taxdomain.CalculationResult{}, "", taxdomain.ErrInvalidAmount
	}

	taxRef := strings.TrimSpace(req.TaxID)
	groupRef := strings.TrimSpace(req.GroupID)
	if (taxRef == "") == (groupRef == "") {
		return taxdomain.CalculationResult{}, "", taxdomain.ErrInvalidTaxSelection
	}

	var (
		taxes   []taxdomain.Tax
		skipped []taxdomain.SkippedTax
		mode    string
	)
	if taxRef != "" {
		mode = modeSingle
		taxID, err := parseID(taxRef)
		if err != nil {
			return taxdomain.CalculationResult{}, mode, err
		}
		tax, err := s.loadTax(ctx, s.db, tenantID, taxID)
		if err != nil {
			return taxdomain.CalculationResult{}, mode, err
		}
		if !tax.IsActive {
			return taxdomain.CalculationResult{}, mode, taxdomain.ErrTaxInactive
		}
		taxes = []taxdomain.Tax{tax}
	} else {
		mode = modeGroup
		groupID, err := parseID(groupRef)
		if err != nil {
			return taxdomain.CalculationResult{}, mode, err
		}
		detail, err := s.loadGroupDetail(ctx, s.db, tenantID, groupID)
		if err != nil {
			return taxdomain.CalculationResult{}, mode, err
		}
		for _, tax := range detail.Taxes {
			if !tax.IsActive {
				skipped = append(skipped, taxdomain.SkippedTax{TaxID: tax.ID, Code: tax.Code, Reason: taxdomain.ErrTaxInactive.Error()})
				continue
			}
			taxes = append(taxes, tax)
		}
	}

	var filtered taxdomain.FilterResult
	if contactRef := strings.TrimSpace(req.ContactID); contactRef != "" {
		contactID, err := snowflake.ParseString(contactRef)
		if err != nil || contactID == 0 {
			return taxdomain.CalculationResult{}, mode, taxdomain.ErrInvalidContact
		}
		exemptions, err := s.repo.ListExemptions(ctx, s.db, tenantID, contactID)
		if err != nil {
			return taxdomain.CalculationResult{}, mode, err
		}
		filtered = taxdomain.FilterExempt(taxes, exemptions, s.clock.Now())
		for _, note := range filtered.Notes {
			s.log.Debug("exemption not applied",
				zap.String("tax_id", note.TaxID.String()),
				zap.String("exemption_id", note.ExemptionID.String()),
				zap.String("reason", note.Reason),
			)
		}
	} else {
		filtered = taxdomain.FilterResult{Applicable: taxes}
	}

	group := taxdomain.CalculateGroup(filtered.Applicable, req.Amount)

	result := taxdomain.CalculationResult{
		BaseAmount: req.Amount,
		Lines:      make([]taxdomain.GroupLine, 0, len(group.Lines)),
		TotalTax:   decimal.Zero,
		Exempted:   filtered.Exempted,
		Notes:      filtered.Notes,
		Skipped:    skipped,
	}
	for _, line := range group.Lines {
		line.TaxableBase = line.TaxableBase.Round(amountScale)
		line.Amount = line.Amount.Round(amountScale)
		result.TotalTax = result.TotalTax.Add(line.Amount)
		result.Lines = append(result.Lines, line)
	}
	result.Total = req.Amount.Add(result.TotalTax)
	return result, mode, nil
}
