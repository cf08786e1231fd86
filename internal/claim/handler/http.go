// Package handler exposes the claim workflow over HTTP. All status mutations
// route through the workflow service; the handler only translates wire shapes
// and maps service errors to status codes.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"claims-portal/backend/internal/claim/domain"
	"claims-portal/backend/internal/claim/service"
	"claims-portal/backend/internal/claim/workflow"
	"claims-portal/backend/internal/config"
	"claims-portal/backend/internal/otp"
	"claims-portal/backend/internal/platform/rbac"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("amount", validAmount)
	}
}

// validAmount accepts a positive decimal string such as "450" or "1299.99".
func validAmount(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && d.IsPositive()
}

// ClaimHandler wires the workflow service to gin routes.
type ClaimHandler struct {
	svc *service.WorkflowService
	// returnOTPToClient echoes issued codes in responses. Never enabled in production.
	returnOTPToClient bool
}

// NewClaimHandler returns a ClaimHandler.
func NewClaimHandler(svc *service.WorkflowService, returnOTPToClient bool) *ClaimHandler {
	return &ClaimHandler{svc: svc, returnOTPToClient: returnOTPToClient}
}

// Register mounts the claim routes. The OTP endpoints go on limited, which the
// server wraps with the rate limiter; pass the same group twice to skip that.
func (h *ClaimHandler) Register(r gin.IRoutes, limited gin.IRoutes) {
	r.GET("/claims", h.List)
	r.POST("/claims", h.Create)
	r.GET("/claims/stats", h.Stats)
	r.GET("/claims/recent", h.Recent)
	r.GET("/claims/:id", h.Get)
	r.PATCH("/claims/:id", h.Patch)
	r.POST("/claims/:id/initiate-payment", h.InitiatePayment)
	limited.POST("/claims/:id/generate-otp", h.GenerateOTP)
	limited.POST("/claims/:id/verify-otp", h.VerifyOTP)
	limited.POST("/claims/:id/resend-otp", h.ResendOTP)
	limited.POST("/claims/:id/mark-paid", h.MarkPaid)
}

type documentRequest struct {
	FileName string `json:"fileName" binding:"required"`
	URL      string `json:"url" binding:"required,url"`
}

type createClaimRequest struct {
	ClaimantName     string            `json:"claimantName" binding:"required"`
	ClaimantID       string            `json:"claimantId" binding:"required"`
	Email            string            `json:"email" binding:"required,email"`
	Phone            string            `json:"phone" binding:"omitempty,e164"`
	Address          string            `json:"address"`
	ClaimType        string            `json:"claimType" binding:"required,oneof=medical property vehicle other"`
	Amount           string            `json:"amount" binding:"required,amount"`
	IncidentDate     time.Time         `json:"incidentDate" binding:"required"`
	IncidentLocation string            `json:"incidentLocation"`
	Description      string            `json:"description" binding:"required"`
	Documents        []documentRequest `json:"documents" binding:"omitempty,dive"`
}

type documentResponse struct {
	ID       string    `json:"id"`
	FileName string    `json:"fileName"`
	URL      string    `json:"url"`
	AddedAt  time.Time `json:"addedAt"`
}

type claimResponse struct {
	ID               string             `json:"id"`
	ClaimantName     string             `json:"claimantName"`
	ClaimantID       string             `json:"claimantId"`
	Email            string             `json:"email"`
	Phone            string             `json:"phone"`
	Address          string             `json:"address,omitempty"`
	ClaimType        string             `json:"claimType"`
	Amount           string             `json:"amount"`
	IncidentDate     time.Time          `json:"incidentDate"`
	IncidentLocation string             `json:"incidentLocation,omitempty"`
	Description      string             `json:"description"`
	Status           string             `json:"status"`
	SubmittedAt      time.Time          `json:"submittedAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
	Documents        []documentResponse `json:"documents"`
}

func toClaimResponse(c *domain.Claim) claimResponse {
	out := claimResponse{
		ID:               c.ID,
		ClaimantName:     c.ClaimantName,
		ClaimantID:       c.ClaimantID,
		Email:            c.Email,
		Phone:            c.Phone,
		Address:          c.Address,
		ClaimType:        string(c.ClaimType),
		Amount:           c.Amount.String(),
		IncidentDate:     c.IncidentDate,
		IncidentLocation: c.IncidentLocation,
		Description:      c.Description,
		Status:           string(c.Status),
		SubmittedAt:      c.SubmittedAt,
		UpdatedAt:        c.UpdatedAt,
		Documents:        make([]documentResponse, 0, len(c.Documents)),
	}
	for _, d := range c.Documents {
		out.Documents = append(out.Documents, documentResponse{
			ID:       d.ID,
			FileName: d.FileName,
			URL:      d.URL,
			AddedAt:  d.AddedAt,
		})
	}
	return out
}

func (h *ClaimHandler) Create(c *gin.Context) {
	var req createClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	in := service.SubmitInput{
		ClaimantName:     req.ClaimantName,
		ClaimantID:       req.ClaimantID,
		Email:            req.Email,
		Phone:            req.Phone,
		Address:          req.Address,
		ClaimType:        domain.ClaimType(req.ClaimType),
		Amount:           amount,
		IncidentDate:     req.IncidentDate,
		IncidentLocation: req.IncidentLocation,
		Description:      req.Description,
	}
	for _, d := range req.Documents {
		in.Documents = append(in.Documents, domain.Document{FileName: d.FileName, URL: d.URL})
	}
	claim, err := h.svc.Submit(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, "Create", err)
		return
	}
	c.JSON(http.StatusCreated, toClaimResponse(claim))
}

func (h *ClaimHandler) Get(c *gin.Context) {
	claim, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Get", err)
		return
	}
	c.JSON(http.StatusOK, toClaimResponse(claim))
}

func (h *ClaimHandler) List(c *gin.Context) {
	var statusFilter *domain.Status
	if raw := c.Query("status"); raw != "" {
		st := domain.Status(raw)
		if !st.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		statusFilter = &st
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	claims, err := h.svc.List(c.Request.Context(), statusFilter, limit, offset)
	if err != nil {
		h.writeError(c, "List", err)
		return
	}
	out := make([]claimResponse, 0, len(claims))
	for _, claim := range claims {
		out = append(out, toClaimResponse(claim))
	}
	c.JSON(http.StatusOK, gin.H{"claims": out})
}

func (h *ClaimHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, "Stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ClaimHandler) Recent(c *gin.Context) {
	claims, err := h.svc.Recent(c.Request.Context(), intQuery(c, "limit", 10))
	if err != nil {
		h.writeError(c, "Recent", err)
		return
	}
	out := make([]claimResponse, 0, len(claims))
	for _, claim := range claims {
		out = append(out, toClaimResponse(claim))
	}
	c.JSON(http.StatusOK, gin.H{"claims": out})
}

type patchClaimRequest struct {
	Status string `json:"status" binding:"required"`
}

// Patch applies a status mutation. The transition table is enforced here on the
// server; whatever the SPA allowed in its UI is advisory only.
func (h *ClaimHandler) Patch(c *gin.Context) {
	var req patchClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	res, err := h.svc.Transition(c.Request.Context(), c.Param("id"), domain.Status(req.Status))
	if err != nil {
		h.writeError(c, "Patch", err)
		return
	}
	h.writeTransitionResult(c, res)
}

// GenerateOTP approves the claim and issues the approval challenge. On a claim
// that is already approved it re-issues the challenge instead, so a lost code
// can be regenerated through the same button.
func (h *ClaimHandler) GenerateOTP(c *gin.Context) {
	id := c.Param("id")
	claim, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "GenerateOTP", err)
		return
	}
	var res *service.TransitionResult
	if claim.Status == domain.StatusApproved {
		res, err = h.svc.ResendOTP(c.Request.Context(), id, workflow.PurposeApproval)
	} else {
		res, err = h.svc.Approve(c.Request.Context(), id)
	}
	if err != nil {
		h.writeError(c, "GenerateOTP", err)
		return
	}
	h.writeTransitionResult(c, res)
}

type verifyOTPRequest struct {
	OTP string `json:"otp" binding:"required"`
}

func (h *ClaimHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "otp is required"})
		return
	}
	claim, err := h.svc.ConfirmApproval(c.Request.Context(), c.Param("id"), req.OTP)
	if err != nil {
		h.writeError(c, "VerifyOTP", err)
		return
	}
	c.JSON(http.StatusOK, toClaimResponse(claim))
}

type resendOTPRequest struct {
	Purpose string `json:"purpose" binding:"omitempty,oneof=approval payment"`
}

func (h *ClaimHandler) ResendOTP(c *gin.Context) {
	var req resendOTPRequest
	_ = c.ShouldBindJSON(&req)
	purpose := req.Purpose
	if purpose == "" {
		purpose = workflow.PurposeApproval
	}
	res, err := h.svc.ResendOTP(c.Request.Context(), c.Param("id"), purpose)
	if err != nil {
		h.writeError(c, "ResendOTP", err)
		return
	}
	h.writeTransitionResult(c, res)
}

func (h *ClaimHandler) InitiatePayment(c *gin.Context) {
	res, err := h.svc.InitiatePayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "InitiatePayment", err)
		return
	}
	h.writeTransitionResult(c, res)
}

type markPaidRequest struct {
	OTP string `json:"otp"`
}

func (h *ClaimHandler) MarkPaid(c *gin.Context) {
	var req markPaidRequest
	_ = c.ShouldBindJSON(&req)
	claim, err := h.svc.MarkPaid(c.Request.Context(), c.Param("id"), req.OTP)
	if err != nil {
		h.writeError(c, "MarkPaid", err)
		return
	}
	c.JSON(http.StatusOK, toClaimResponse(claim))
}

// writeTransitionResult renders the claim plus challenge metadata. The plain
// code is included only when dev OTP mode is on; a dispatch failure degrades to
// a warning because the transition itself has already applied.
func (h *ClaimHandler) writeTransitionResult(c *gin.Context, res *service.TransitionResult) {
	body := gin.H{"claim": toClaimResponse(res.Claim)}
	if res.Challenge != nil {
		ch := gin.H{
			"purpose":   res.Challenge.Challenge.Purpose,
			"expiresAt": res.Challenge.Challenge.ExpiresAt,
		}
		if h.returnOTPToClient && res.Challenge.PlainCode != "" {
			ch["otp"] = res.Challenge.PlainCode
		}
		body["challenge"] = ch
	}
	if res.Warning != nil {
		body["warning"] = "notification dispatch failed; the code may not have reached the claimant"
	}
	c.JSON(http.StatusOK, body)
}

func (h *ClaimHandler) writeError(c *gin.Context, funcName string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "claim not found"})
	case errors.Is(err, rbac.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, rbac.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role for this transition"})
	case errors.Is(err, service.ErrStaleState):
		c.JSON(http.StatusConflict, gin.H{"error": "claim was modified concurrently; re-fetch and retry"})
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrUnknownStatus),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidClaimType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, otp.ErrCodeMismatch),
		errors.Is(err, otp.ErrNoActiveChallenge),
		errors.Is(err, otp.ErrExpired),
		errors.Is(err, otp.ErrAlreadyConsumed),
		errors.Is(err, otp.ErrTooManyAttempts):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		config.LogError(config.GetLogger(), "claim", funcName, "workflow", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
