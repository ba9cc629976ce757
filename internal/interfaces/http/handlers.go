package http

import (
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-scheduler/internal/application/service"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	config   ServerConfig
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, config ServerConfig, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		config:   config,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Error     string `json:"error,omitempty"`
}

// CreateClientRequest is the body of POST /api/clients
type CreateClientRequest struct {
	Name             string           `json:"name" binding:"required"`
	Email            string           `json:"email"`
	BillingFrequency entity.Frequency `json:"billing_frequency" binding:"required"`
	Fee              *decimal.Decimal `json:"fee"`
	Description      string           `json:"description"`
	NetDays          *int             `json:"net_days"`
	NextInvoiceDate  *civil.Date      `json:"next_invoice_date"`
}

// UpdateClientRequest is the body of PATCH /api/clients/:id
type UpdateClientRequest struct {
	Name             *string           `json:"name"`
	Email            *string           `json:"email"`
	BillingFrequency *entity.Frequency `json:"billing_frequency"`
	Fee              *decimal.Decimal  `json:"fee"`
	ClearFee         bool              `json:"clear_fee"`
	Description      *string           `json:"description"`
	NetDays          *int              `json:"net_days"`
	ClearNetDays     bool              `json:"clear_net_days"`
	NextInvoiceDate  *civil.Date       `json:"next_invoice_date"`
}

// ChangeStatusRequest is the body of POST /api/clients/:id/status
type ChangeStatusRequest struct {
	Status          entity.ClientStatus `json:"status" binding:"required"`
	NextInvoiceDate *civil.Date         `json:"next_invoice_date"`
}

// CreateInvoiceRequest is the body of POST /api/invoices
type CreateInvoiceRequest struct {
	ClientID         string           `json:"client_id" binding:"required"`
	Amount           decimal.Decimal  `json:"amount"`
	Description      string           `json:"description"`
	IssueDate        *civil.Date      `json:"issue_date"`
	NetDays          *int             `json:"net_days"`
	BillingFrequency entity.Frequency `json:"billing_frequency"`
	SendEmail        bool             `json:"send_email"`
}

// UpdateInvoiceRequest is the body of PATCH /api/invoices/:id
type UpdateInvoiceRequest struct {
	Amount           *decimal.Decimal  `json:"amount"`
	Description      *string           `json:"description"`
	IssueDate        *civil.Date       `json:"issue_date"`
	DueDate          *civil.Date       `json:"due_date"`
	BillingFrequency *entity.Frequency `json:"billing_frequency"`
	NotifyClient     bool              `json:"notify_client"`
}

// MarkPaidRequest is the optional body of POST /api/invoices/:id/paid
type MarkPaidRequest struct {
	PaidAt *time.Time `json:"paid_at"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	status := http.StatusOK
	if h.services.Health != nil {
		if err := h.services.Health.Ping(c.Request.Context()); err != nil {
			response.Status = "unhealthy"
			response.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// ListClients handles GET /api/clients
func (h *Handlers) ListClients(c *gin.Context) {
	var filter entity.ClientFilter
	if s := c.Query("status"); s != "" {
		filter.Statuses = []entity.ClientStatus{entity.ClientStatus(s)}
	}
	if s := c.Query("on_hold"); s != "" {
		held, err := strconv.ParseBool(s)
		if err != nil {
			respondBadRequest(c, "invalid on_hold")
			return
		}
		filter.OnHold = &held
	}
	if s := c.Query("next_invoice_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			respondBadRequest(c, "invalid next_invoice_date")
			return
		}
		filter.NextInvoiceDate = d
	}

	clients, err := h.services.Clients.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "list clients", err)
		return
	}
	respondOK(c, http.StatusOK, clients)
}

// CreateClient handles POST /api/clients
func (h *Handlers) CreateClient(c *gin.Context) {
	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if req.Email != "" {
		if err := utils.ValidateEmail(req.Email); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}

	client := &entity.Client{
		Name:             utils.SanitizeString(req.Name),
		Email:            req.Email,
		BillingFrequency: req.BillingFrequency,
		Fee:              req.Fee,
		Description:      utils.SanitizeString(req.Description),
		NetDays:          req.NetDays,
	}
	if req.NextInvoiceDate != nil {
		client.NextInvoiceDate = *req.NextInvoiceDate
	}

	created, err := h.services.Clients.Create(c.Request.Context(), client)
	if err != nil {
		h.respondError(c, "create client", err)
		return
	}
	respondOK(c, http.StatusCreated, created)
}

// GetClient handles GET /api/clients/:id
func (h *Handlers) GetClient(c *gin.Context) {
	client, err := h.services.Clients.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get client", err)
		return
	}
	respondOK(c, http.StatusOK, client)
}

// UpdateClient handles PATCH /api/clients/:id
func (h *Handlers) UpdateClient(c *gin.Context) {
	var req UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if req.Email != nil && *req.Email != "" {
		if err := utils.ValidateEmail(*req.Email); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}
	req.Name = sanitized(req.Name)
	req.Description = sanitized(req.Description)

	patch := entity.ClientPatch{
		Name:             req.Name,
		Email:            req.Email,
		BillingFrequency: req.BillingFrequency,
		Fee:              req.Fee,
		ClearFee:         req.ClearFee,
		Description:      req.Description,
		NetDays:          req.NetDays,
		ClearNetDays:     req.ClearNetDays,
		NextInvoiceDate:  req.NextInvoiceDate,
	}

	client, err := h.services.Clients.UpdateBilling(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, "update client", err)
		return
	}
	respondOK(c, http.StatusOK, client)
}

// ChangeClientStatus handles POST /api/clients/:id/status
func (h *Handlers) ChangeClientStatus(c *gin.Context) {
	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.services.Clients.ChangeStatus(c.Request.Context(), c.Param("id"), req.Status, req.NextInvoiceDate)
	if err != nil {
		h.respondError(c, "change client status", err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ListInvoices handles GET /api/invoices
func (h *Handlers) ListInvoices(c *gin.Context) {
	q := service.ListInvoicesQuery{
		ClientID: c.Query("client_id"),
		SeriesID: c.Query("series_id"),
		Status:   entity.InvoiceStatus(c.Query("status")),
	}
	var err error
	if q.From, err = optionalDate(c, "from"); err != nil {
		respondBadRequest(c, "invalid from date")
		return
	}
	if q.To, err = optionalDate(c, "to"); err != nil {
		respondBadRequest(c, "invalid to date")
		return
	}

	invoices, err := h.services.Invoices.List(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, "list invoices", err)
		return
	}
	respondOK(c, http.StatusOK, invoices)
}

// CreateInvoice handles POST /api/invoices
func (h *Handlers) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := utils.ValidateAmount(req.Amount); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	create := service.CreateInvoiceRequest{
		ClientID:         req.ClientID,
		Amount:           req.Amount,
		Description:      utils.SanitizeString(req.Description),
		NetDays:          req.NetDays,
		BillingFrequency: req.BillingFrequency,
		SendEmail:        req.SendEmail,
	}
	if req.IssueDate != nil {
		create.IssueDate = *req.IssueDate
	}

	result, err := h.services.Invoices.Create(c.Request.Context(), create)
	if err != nil {
		h.respondError(c, "create invoice", err)
		return
	}
	respondOK(c, http.StatusCreated, result)
}

// GetInvoice handles GET /api/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	inv, err := h.services.Invoices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get invoice", err)
		return
	}
	respondOK(c, http.StatusOK, inv)
}

// UpdateInvoice handles PATCH /api/invoices/:id?scope=single|series-forward
func (h *Handlers) UpdateInvoice(c *gin.Context) {
	var req UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if req.Amount != nil {
		if err := utils.ValidateAmount(*req.Amount); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}

	changes := service.InvoiceChanges{
		Amount:           req.Amount,
		Description:      sanitized(req.Description),
		IssueDate:        req.IssueDate,
		DueDate:          req.DueDate,
		BillingFrequency: req.BillingFrequency,
	}
	opts := service.EditOptions{NotifyClient: req.NotifyClient}

	updated, err := h.services.Editor.UpdateInvoice(c.Request.Context(), c.Param("id"), changes, scopeOf(c), opts)
	if err != nil {
		h.respondError(c, "update invoice", err)
		return
	}
	respondOK(c, http.StatusOK, updated)
}

// DeleteInvoice handles DELETE /api/invoices/:id?scope=single|series-forward&notify=true
func (h *Handlers) DeleteInvoice(c *gin.Context) {
	notify, _ := strconv.ParseBool(c.Query("notify"))

	removed, err := h.services.Editor.DeleteInvoice(c.Request.Context(), c.Param("id"), scopeOf(c), service.EditOptions{NotifyClient: notify})
	if err != nil {
		h.respondError(c, "delete invoice", err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"removed": removed})
}

// SendInvoice handles POST /api/invoices/:id/send
func (h *Handlers) SendInvoice(c *gin.Context) {
	inv, err := h.services.Invoices.SendNow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "send invoice", err)
		return
	}
	respondOK(c, http.StatusOK, inv)
}

// MarkPaid handles POST /api/invoices/:id/paid
func (h *Handlers) MarkPaid(c *gin.Context) {
	var req MarkPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	var paidAt time.Time
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	inv, err := h.services.Invoices.MarkPaid(c.Request.Context(), c.Param("id"), paidAt)
	if err != nil {
		h.respondError(c, "mark paid", err)
		return
	}
	respondOK(c, http.StatusOK, inv)
}

// MarkUnpaid handles POST /api/invoices/:id/unpaid
func (h *Handlers) MarkUnpaid(c *gin.Context) {
	inv, err := h.services.Invoices.MarkUnpaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "mark unpaid", err)
		return
	}
	respondOK(c, http.StatusOK, inv)
}

// VoidInvoice handles POST /api/invoices/:id/void
func (h *Handlers) VoidInvoice(c *gin.Context) {
	inv, err := h.services.Invoices.Void(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "void invoice", err)
		return
	}
	respondOK(c, http.StatusOK, inv)
}

// RunTick handles POST /api/scheduler/tick
func (h *Handlers) RunTick(c *gin.Context) {
	report := h.services.Generation.Tick(c.Request.Context())
	respondOK(c, http.StatusOK, report)
}

func sanitized(s *string) *string {
	if s == nil {
		return nil
	}
	clean := utils.SanitizeString(*s)
	return &clean
}

func scopeOf(c *gin.Context) entity.Scope {
	return entity.Scope(c.DefaultQuery("scope", string(entity.ScopeSingle)))
}

func optionalDate(c *gin.Context, key string) (civil.Date, error) {
	s := c.Query(key)
	if s == "" {
		return civil.Date{}, nil
	}
	return civil.ParseDate(s)
}
