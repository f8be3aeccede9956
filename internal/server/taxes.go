package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/bookkeeping/internal/tax/domain"
)

type createTaxRequest struct {
	Code string          `json:"code"`
	Name string          `json:"name"`
	Rate decimal.Decimal `json:"rate"`
	Type string          `json:"type"`
}

type updateTaxRequest struct {
	Name *string          `json:"name,omitempty"`
	Rate *decimal.Decimal `json:"rate,omitempty"`
	Type *string          `json:"type,omitempty"`
}

type createTaxGroupRequest struct {
	Name   string   `json:"name"`
	TaxIDs []string `json:"tax_ids"`
}

type addTaxGroupMemberRequest struct {
	TaxID      string `json:"tax_id"`
	OrderIndex *int   `json:"order_index,omitempty"`
}

type createExemptionRequest struct {
	ContactID         string `json:"contact_id"`
	TaxID             string `json:"tax_id"`
	ExemptionType     string `json:"exemption_type"`
	CertificateNumber string `json:"certificate_number"`
	CertificateExpiry string `json:"certificate_expiry"`
}

type calculateTaxRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	TaxID     string          `json:"tax_id"`
	GroupID   string          `json:"group_id"`
	ContactID string          `json:"contact_id"`
}

func (s *Server) CreateTax(c *gin.Context) {
	var req createTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.taxSvc.CreateTax(c.Request.Context(), taxdomain.CreateTaxRequest{
		Code: strings.TrimSpace(req.Code),
		Name: strings.TrimSpace(req.Name),
		Rate: req.Rate,
		Type: taxdomain.TaxType(strings.TrimSpace(req.Type)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListTaxes(c *gin.Context) {
	var query struct {
		Code     string `form:"code"`
		Type     string `form:"type"`
		IsActive string `form:"is_active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	isActive, err := parseOptionalBool(query.IsActive)
	if err != nil {
		AbortWithError(c, newValidationError("is_active", "invalid_is_active", "invalid is_active"))
		return
	}

	resp, err := s.taxSvc.ListTaxes(c.Request.Context(), taxdomain.ListTaxRequest{
		Code:     strings.TrimSpace(query.Code),
		Type:     strings.TrimSpace(query.Type),
		IsActive: isActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTax(c *gin.Context) {
	resp, err := s.taxSvc.GetTax(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateTax(c *gin.Context) {
	var req updateTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := taxdomain.UpdateTaxRequest{
		ID:   strings.TrimSpace(c.Param("id")),
		Name: trimOptional(req.Name),
		Rate: req.Rate,
	}
	if req.Type != nil {
		taxType := taxdomain.TaxType(strings.TrimSpace(*req.Type))
		update.Type = &taxType
	}

	resp, err := s.taxSvc.UpdateTax(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateTax(c *gin.Context) {
	resp, err := s.taxSvc.DeactivateTax(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateTaxGroup(c *gin.Context) {
	var req createTaxGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	taxIDs := make([]string, 0, len(req.TaxIDs))
	for _, id := range req.TaxIDs {
		taxIDs = append(taxIDs, strings.TrimSpace(id))
	}

	resp, err := s.taxSvc.CreateGroup(c.Request.Context(), taxdomain.CreateGroupRequest{
		Name:   strings.TrimSpace(req.Name),
		TaxIDs: taxIDs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListTaxGroups(c *gin.Context) {
	resp, err := s.taxSvc.ListGroups(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTaxGroup(c *gin.Context) {
	resp, err := s.taxSvc.GetGroup(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddTaxGroupMember(c *gin.Context) {
	var req addTaxGroupMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.taxSvc.AddGroupMember(c.Request.Context(), taxdomain.AddMemberRequest{
		GroupID:    strings.TrimSpace(c.Param("id")),
		TaxID:      strings.TrimSpace(req.TaxID),
		OrderIndex: req.OrderIndex,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveTaxGroupMember(c *gin.Context) {
	resp, err := s.taxSvc.RemoveGroupMember(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(c.Param("taxId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTaxGroupEffectiveRate(c *gin.Context) {
	groupID := strings.TrimSpace(c.Param("id"))
	rate, err := s.taxSvc.EffectiveRate(c.Request.Context(), groupID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"group_id":       groupID,
		"effective_rate": rate,
	}})
}

func (s *Server) CreateTaxExemption(c *gin.Context) {
	var req createExemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	expiry, err := parseOptionalTime(req.CertificateExpiry, true)
	if err != nil {
		AbortWithError(c, newValidationError("certificate_expiry", "invalid_certificate_expiry", "invalid certificate_expiry"))
		return
	}

	resp, err := s.taxSvc.CreateExemption(c.Request.Context(), taxdomain.CreateExemptionRequest{
		ContactID:         strings.TrimSpace(req.ContactID),
		TaxID:             strings.TrimSpace(req.TaxID),
		ExemptionType:     taxdomain.ExemptionType(strings.TrimSpace(req.ExemptionType)),
		CertificateNumber: strings.TrimSpace(req.CertificateNumber),
		CertificateExpiry: expiry,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListTaxExemptions(c *gin.Context) {
	contactID := strings.TrimSpace(c.Query("contact_id"))
	if contactID == "" {
		AbortWithError(c, newValidationError("contact_id", "invalid_contact", "contact_id is required"))
		return
	}

	resp, err := s.taxSvc.ListExemptions(c.Request.Context(), contactID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateTaxExemption(c *gin.Context) {
	resp, err := s.taxSvc.DeactivateExemption(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CalculateTax(c *gin.Context) {
	var req calculateTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.taxSvc.Calculate(c.Request.Context(), taxdomain.CalculateRequest{
		Amount:    req.Amount,
		TaxID:     strings.TrimSpace(req.TaxID),
		GroupID:   strings.TrimSpace(req.GroupID),
		ContactID: strings.TrimSpace(req.ContactID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
