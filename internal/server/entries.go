package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/bookkeeping/internal/ledger/domain"
)

type entryLineRequest struct {
	AccountID string          `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo"`
	ContactID string          `json:"contact_id"`
}

// Dates are accepted as RFC3339 or YYYY-MM-DD.
type createEntryRequest struct {
	Date         string             `json:"date"`
	Type         string             `json:"type"`
	Memo         string             `json:"memo"`
	ReversalDate string             `json:"reversal_date"`
	SourceModule string             `json:"source_module"`
	SourceID     string             `json:"source_id"`
	Lines        []entryLineRequest `json:"lines"`
}

type updateEntryRequest struct {
	Date  *string            `json:"date,omitempty"`
	Memo  *string            `json:"memo,omitempty"`
	Lines []entryLineRequest `json:"lines,omitempty"`
}

type voidEntryRequest struct {
	Reason string `json:"reason"`
}

type reverseEntryRequest struct {
	Date string `json:"date"`
	Memo string `json:"memo"`
}

func (s *Server) CreateEntry(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	date, err := parseOptionalTime(req.Date, false)
	if err != nil || date == nil {
		AbortWithError(c, newValidationError("date", "invalid_date", "invalid date"))
		return
	}
	reversalDate, err := parseOptionalTime(req.ReversalDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("reversal_date", "invalid_reversal_date", "invalid reversal_date"))
		return
	}

	resp, err := s.ledgerSvc.CreateDraft(c.Request.Context(), ledgerdomain.CreateEntryRequest{
		Date:         *date,
		Type:         ledgerdomain.EntryType(strings.TrimSpace(req.Type)),
		Memo:         strings.TrimSpace(req.Memo),
		ReversalDate: reversalDate,
		SourceModule: strings.TrimSpace(req.SourceModule),
		SourceID:     strings.TrimSpace(req.SourceID),
		Lines:        toLineRequests(req.Lines),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListEntries(c *gin.Context) {
	var query struct {
		Status   string `form:"status"`
		Type     string `form:"type"`
		DateFrom string `form:"date_from"`
		DateTo   string `form:"date_to"`
		Limit    string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dateFrom, err := parseOptionalTime(query.DateFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("date_from", "invalid_date_from", "invalid date_from"))
		return
	}
	dateTo, err := parseOptionalTime(query.DateTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("date_to", "invalid_date_to", "invalid date_to"))
		return
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListEntryRequest{
		Status:   strings.TrimSpace(query.Status),
		Type:     strings.TrimSpace(query.Type),
		DateFrom: dateFrom,
		DateTo:   dateTo,
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetEntry(c *gin.Context) {
	resp, err := s.ledgerSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateEntry(c *gin.Context) {
	var req updateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := ledgerdomain.UpdateEntryRequest{
		ID:   strings.TrimSpace(c.Param("id")),
		Memo: trimOptional(req.Memo),
	}
	if req.Date != nil {
		date, err := parseOptionalTime(*req.Date, false)
		if err != nil || date == nil {
			AbortWithError(c, newValidationError("date", "invalid_date", "invalid date"))
			return
		}
		update.Date = date
	}
	if req.Lines != nil {
		update.Lines = toLineRequests(req.Lines)
	}

	resp, err := s.ledgerSvc.UpdateDraft(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteEntry(c *gin.Context) {
	if err := s.ledgerSvc.DeleteDraft(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ApproveEntry(c *gin.Context) {
	resp, err := s.ledgerSvc.Approve(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PostEntry(c *gin.Context) {
	resp, err := s.ledgerSvc.Post(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) VoidEntry(c *gin.Context) {
	var req voidEntryRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.Void(c.Request.Context(), ledgerdomain.VoidRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReverseEntry(c *gin.Context) {
	var req reverseEntryRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	date, err := parseOptionalTime(req.Date, false)
	if err != nil {
		AbortWithError(c, newValidationError("date", "invalid_date", "invalid date"))
		return
	}

	resp, err := s.ledgerSvc.Reverse(c.Request.Context(), ledgerdomain.ReverseRequest{
		ID:   strings.TrimSpace(c.Param("id")),
		Date: date,
		Memo: strings.TrimSpace(req.Memo),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func toLineRequests(lines []entryLineRequest) []ledgerdomain.LineRequest {
	out := make([]ledgerdomain.LineRequest, 0, len(lines))
	for _, line := range lines {
		out = append(out, ledgerdomain.LineRequest{
			AccountID: strings.TrimSpace(line.AccountID),
			Debit:     line.Debit,
			Credit:    line.Credit,
			Memo:      strings.TrimSpace(line.Memo),
			ContactID: strings.TrimSpace(line.ContactID),
		})
	}
	return out
}

// bindOptionalJSON tolerates an empty body for actions whose payload is optional.
func bindOptionalJSON(c *gin.Context, out any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}
