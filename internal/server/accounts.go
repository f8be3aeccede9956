package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/bookkeeping/internal/account/domain"
	ledgerdomain "github.com/smallbiznis/bookkeeping/internal/ledger/domain"
)

type createAccountRequest struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Subtype        string          `json:"subtype"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ParentID       string          `json:"parent_id"`
}

type updateAccountRequest struct {
	Code     *string `json:"code,omitempty"`
	Name     *string `json:"name,omitempty"`
	Type     *string `json:"type,omitempty"`
	Subtype  *string `json:"subtype,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
}

func (s *Server) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.accountSvc.Create(c.Request.Context(), accountdomain.CreateAccountRequest{
		Code:           strings.TrimSpace(req.Code),
		Name:           strings.TrimSpace(req.Name),
		Type:           accountdomain.AccountType(strings.TrimSpace(req.Type)),
		Subtype:        accountdomain.AccountSubtype(strings.TrimSpace(req.Subtype)),
		OpeningBalance: req.OpeningBalance,
		ParentID:       strings.TrimSpace(req.ParentID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListAccounts(c *gin.Context) {
	var query struct {
		Code     string `form:"code"`
		Type     string `form:"type"`
		IsActive string `form:"is_active"`
		ParentID string `form:"parent_id"`
		RootOnly string `form:"root_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// A code lookup answers with a single-element list so clients page the same way.
	if code := strings.TrimSpace(query.Code); code != "" {
		resp, err := s.accountSvc.GetByCode(c.Request.Context(), code)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": []accountdomain.Account{resp}})
		return
	}

	isActive, err := parseOptionalBool(query.IsActive)
	if err != nil {
		AbortWithError(c, newValidationError("is_active", "invalid_is_active", "invalid is_active"))
		return
	}
	rootOnly, err := parseOptionalBool(query.RootOnly)
	if err != nil {
		AbortWithError(c, newValidationError("root_only", "invalid_root_only", "invalid root_only"))
		return
	}

	resp, err := s.accountSvc.List(c.Request.Context(), accountdomain.ListAccountRequest{
		Type:     strings.TrimSpace(query.Type),
		IsActive: isActive,
		ParentID: strings.TrimSpace(query.ParentID),
		RootOnly: rootOnly != nil && *rootOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetAccount(c *gin.Context) {
	resp, err := s.accountSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateAccount(c *gin.Context) {
	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := accountdomain.UpdateAccountRequest{
		ID:       strings.TrimSpace(c.Param("id")),
		Code:     trimOptional(req.Code),
		Name:     trimOptional(req.Name),
		ParentID: trimOptional(req.ParentID),
	}
	if req.Type != nil {
		accountType := accountdomain.AccountType(strings.TrimSpace(*req.Type))
		update.Type = &accountType
	}
	if req.Subtype != nil {
		subtype := accountdomain.AccountSubtype(strings.TrimSpace(*req.Subtype))
		update.Subtype = &subtype
	}

	resp, err := s.accountSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateAccount(c *gin.Context) {
	resp, err := s.accountSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivateAccount(c *gin.Context) {
	resp, err := s.accountSvc.Activate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAccountChildren(c *gin.Context) {
	resp, err := s.accountSvc.Children(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAccountHistory(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	resp, err := s.ledgerSvc.History(c.Request.Context(), ledgerdomain.HistoryRequest{
		AccountID:      strings.TrimSpace(c.Param("id")),
		JournalEntryID: strings.TrimSpace(c.Query("journal_entry_id")),
		Limit:          limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
