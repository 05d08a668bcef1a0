package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"ticket-escrow/internal/auth"
	"ticket-escrow/internal/contract"
	"ticket-escrow/internal/status"
	"ticket-escrow/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/shopspring/decimal"
)

// SignerLimiter throttles requests per verified signer.
type SignerLimiter interface {
	LimitSigner(ctx context.Context, addr models.Address) error
}

type ContractHandler struct {
	contract *contract.Contract
	verifier *auth.Verifier
	limiter  SignerLimiter
}

func NewContractHandler(c *contract.Contract, verifier *auth.Verifier) *ContractHandler {
	return &ContractHandler{
		contract: c,
		verifier: verifier,
	}
}

// LimitSigners applies l to every signer of a verified request.
func (h *ContractHandler) LimitSigners(l SignerLimiter) *ContractHandler {
	h.limiter = l
	return h
}

// Register mounts the contract routes under /api/contract.
func (h *ContractHandler) Register(r *router.Router[*core.RequestEvent], middlewares ...func(*core.RequestEvent) error) {
	g := r.Group("/api/contract")
	for _, mw := range middlewares {
		g.BindFunc(mw)
	}

	// Administration
	g.POST("/initialize", h.Initialize)
	g.GET("/admin", h.GetAdmin)
	g.POST("/admin", h.SetAdmin)
	g.GET("/fees", h.GetFees)
	g.POST("/fees", h.SetPlatformFee)
	g.POST("/fees/withdraw", h.WithdrawPlatformFees)

	// Events
	g.GET("/events", h.ListEvents)
	g.POST("/events", h.CreateEvent)
	g.GET("/events/{eventId}", h.GetEvent)
	g.POST("/events/{eventId}/status", h.UpdateEventStatus)
	g.POST("/events/{eventId}/publish", h.PublishEvent)
	g.POST("/events/{eventId}/cancel", h.CancelEvent)
	g.POST("/events/{eventId}/complete", h.CompleteEvent)

	// Validators
	g.POST("/events/{eventId}/validators", h.AddValidator)
	g.GET("/events/{eventId}/validators/{address}", h.IsValidator)
	g.DELETE("/events/{eventId}/validators/{address}", h.RemoveValidator)

	// Tickets
	g.POST("/events/{eventId}/tickets", h.PurchaseTicket)
	g.GET("/tickets/{ticketId}", h.GetTicket)
	g.POST("/tickets/{ticketId}/validate", h.ValidateTicket)
	g.POST("/tickets/{ticketId}/transfer", h.TransferTicket)
	g.POST("/tickets/{ticketId}/refund", h.RefundTicket)

	// Escrow
	g.GET("/events/{eventId}/escrow", h.GetEscrow)
	g.POST("/events/{eventId}/escrow/release", h.ReleaseEscrow)
	g.GET("/events/{eventId}/escrow/signers", h.GetEscrowConfig)
	g.POST("/events/{eventId}/escrow/signers", h.SetEscrowSigners)
	g.POST("/events/{eventId}/escrow/approve", h.ApproveRelease)
	g.POST("/events/{eventId}/escrow/revoke", h.RevokeApproval)
	g.GET("/events/{eventId}/escrow/approvals/{address}", h.HasApproved)
	g.POST("/events/{eventId}/escrow/distribute", h.DistributeEscrow)
}

// signed verifies the request signatures, binds the JSON body into req and
// returns a context authorizing the signers.
func (h *ContractHandler) signed(e *core.RequestEvent, req any) (context.Context, error) {
	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return nil, apis.NewBadRequestError("Failed to read request body", err)
	}
	e.Request.Body = io.NopCloser(bytes.NewReader(body))

	signers, err := h.verifier.Verify(e.Request, body)
	if errors.Is(err, auth.ErrReplayed) {
		return nil, apis.NewUnauthorizedError("Request already processed", err)
	}
	if err != nil {
		return nil, apis.NewUnauthorizedError("Invalid request signature", err)
	}
	if h.limiter != nil {
		for _, addr := range signers {
			if err := h.limiter.LimitSigner(e.Request.Context(), addr); err != nil {
				return nil, err
			}
		}
	}
	if req != nil && len(body) > 0 {
		if err := e.BindBody(req); err != nil {
			return nil, apis.NewBadRequestError("Invalid request", err)
		}
	}
	return auth.WithSigners(e.Request.Context(), signers...), nil
}

func pathID(e *core.RequestEvent, name string) (uint64, error) {
	id, err := strconv.ParseUint(e.Request.PathValue(name), 10, 64)
	if err != nil {
		return 0, apis.NewBadRequestError("Invalid "+name, err)
	}
	return id, nil
}

// HTTPStatus maps a contract error code to the response status.
func HTTPStatus(code status.Code) int {
	switch code {
	case status.ErrUnauthorized.Code:
		return http.StatusForbidden
	case status.ErrEventNotFound.Code, status.ErrTicketNotFound.Code, status.ErrEscrowConfigNotFound.Code:
		return http.StatusNotFound
	case status.ErrInsufficientFunds.Code:
		return http.StatusPaymentRequired
	case status.ErrInvalidAmount.Code, status.ErrCapacityExceeded.Code, status.ErrInvalidTimeRange.Code,
		status.ErrEmptyString.Code, status.ErrInvalidAddress.Code, status.ErrInvalidPlatformFee.Code,
		status.ErrInvalidThreshold.Code:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}

// fail renders contract errors as {code, error, message}. Anything else is
// an infrastructure failure.
func (h *ContractHandler) fail(e *core.RequestEvent, err error) error {
	var ce *status.Error
	if !errors.As(err, &ce) {
		slog.Error("Contract call failed", "path", e.Request.URL.Path, "error", err)
		return apis.NewInternalServerError("internal error", err)
	}
	return e.JSON(HTTPStatus(ce.Code), map[string]any{
		"code":    ce.Code,
		"error":   ce.Name,
		"message": err.Error(),
	})
}

type initializeRequest struct {
	Admin models.Address `json:"admin"`
}

func (h *ContractHandler) Initialize(e *core.RequestEvent) error {
	var req initializeRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := h.contract.Initialize(ctx, req.Admin); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"admin": req.Admin})
}

func (h *ContractHandler) GetAdmin(e *core.RequestEvent) error {
	admin, err := h.contract.GetAdmin(e.Request.Context())
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"admin": admin})
}

type setAdminRequest struct {
	Current models.Address `json:"current"`
	Next    models.Address `json:"next"`
}

func (h *ContractHandler) SetAdmin(e *core.RequestEvent) error {
	var req setAdminRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := h.contract.SetAdmin(ctx, req.Current, req.Next); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"admin": req.Next})
}

func (h *ContractHandler) GetFees(e *core.RequestEvent) error {
	fees, err := h.contract.FeeState(e.Request.Context())
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, fees)
}

type setFeeRequest struct {
	Admin  models.Address `json:"admin"`
	FeeBps uint32         `json:"fee_bps"`
}

func (h *ContractHandler) SetPlatformFee(e *core.RequestEvent) error {
	var req setFeeRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := h.contract.SetPlatformFee(ctx, req.Admin, req.FeeBps); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"fee_bps": req.FeeBps})
}

type adminRequest struct {
	Admin models.Address `json:"admin"`
}

func (h *ContractHandler) WithdrawPlatformFees(e *core.RequestEvent) error {
	var req adminRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	amount, err := h.contract.WithdrawPlatformFees(ctx, req.Admin)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"amount": amount})
}

type createEventRequest struct {
	Organizer   models.Address  `json:"organizer"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	StartTime   uint64          `json:"start_time"`
	EndTime     uint64          `json:"end_time"`
	TicketPrice decimal.Decimal `json:"ticket_price"`
	MaxTickets  uint32          `json:"max_tickets"`
}

func (h *ContractHandler) CreateEvent(e *core.RequestEvent) error {
	var req createEventRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	id, err := h.contract.CreateEvent(ctx, req.Organizer, contract.EventParams{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		TicketPrice: req.TicketPrice,
		MaxTickets:  req.MaxTickets,
	})
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusCreated, map[string]any{"event_id": id})
}

func (h *ContractHandler) GetEvent(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	event, err := h.contract.GetEvent(e.Request.Context(), eventID)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, event)
}

// ListEvents serves ?status=&organizer=&search=&page=&limit=.
func (h *ContractHandler) ListEvents(e *core.RequestEvent) error {
	q := e.Request.URL.Query()
	filter := contract.EventFilter{
		Organizer: models.Address(q.Get("organizer")),
		Search:    q.Get("search"),
	}
	if raw := q.Get("status"); raw != "" {
		st, err := models.ParseEventStatus(raw)
		if err != nil {
			return apis.NewBadRequestError("Invalid status", err)
		}
		filter.Status = &st
	}
	for name, dst := range map[string]*int{"page": &filter.Page, "limit": &filter.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return apis.NewBadRequestError("Invalid "+name, err)
		}
		*dst = n
	}

	page, err := h.contract.ListEvents(e.Request.Context(), filter)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, page)
}

type updateStatusRequest struct {
	Caller models.Address     `json:"caller"`
	Status models.EventStatus `json:"status"`
}

func (h *ContractHandler) UpdateEventStatus(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	var req updateStatusRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := h.contract.UpdateEventStatus(ctx, eventID, req.Status, req.Caller); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"event_id": eventID, "status": req.Status})
}

type organizerRequest struct {
	Organizer models.Address `json:"organizer"`
}

// organizerTransition serves the publish, cancel and complete shortcuts.
func (h *ContractHandler) organizerTransition(e *core.RequestEvent, to models.EventStatus,
	fn func(context.Context, models.Address, uint64) error) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	var req organizerRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := fn(ctx, req.Organizer, eventID); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"event_id": eventID, "status": to})
}

func (h *ContractHandler) PublishEvent(e *core.RequestEvent) error {
	return h.organizerTransition(e, models.EventPublished, h.contract.PublishEvent)
}

func (h *ContractHandler) CancelEvent(e *core.RequestEvent) error {
	return h.organizerTransition(e, models.EventCancelled, h.contract.CancelEvent)
}

func (h *ContractHandler) CompleteEvent(e *core.RequestEvent) error {
	return h.organizerTransition(e, models.EventCompleted, h.contract.CompleteEvent)
}

type validatorRequest struct {
	Organizer models.Address `json:"organizer"`
	Validator models.Address `json:"validator"`
}

func (h *ContractHandler) AddValidator(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	var req validatorRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := h.contract.AddValidator(ctx, req.Organizer, eventID, req.Validator); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"event_id": eventID, "validator": req.Validator})
}

func (h *ContractHandler) RemoveValidator(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	var req organizerRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	validator := models.Address(e.Request.PathValue("address"))
	if err := h.contract.RemoveValidator(ctx, req.Organizer, eventID, validator); err != nil {
		return h.fail(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *ContractHandler) IsValidator(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	addr := models.Address(e.Request.PathValue("address"))
	ok, err := h.contract.IsValidator(e.Request.Context(), eventID, addr)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"validator": ok})
}

type purchaseRequest struct {
	Buyer   models.Address  `json:"buyer"`
	Payment decimal.Decimal `json:"payment"`
}

func (h *ContractHandler) PurchaseTicket(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	var req purchaseRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	ticketID, err := h.contract.PurchaseTicket(ctx, req.Buyer, eventID, req.Payment)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusCreated, map[string]any{"ticket_id": ticketID, "event_id": eventID})
}

func (h *ContractHandler) GetTicket(e *core.RequestEvent) error {
	ticketID, err := pathID(e, "ticketId")
	if err != nil {
		return err
	}
	ticket, err := h.contract.GetTicket(e.Request.Context(), ticketID)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, ticket)
}

type checkInRequest struct {
	Validator models.Address `json:"validator"`
}

func (h *ContractHandler) ValidateTicket(e *core.RequestEvent) error {
	ticketID, err := pathID(e, "ticketId")
	if err != nil {
		return err
	}
	var req checkInRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := h.contract.ValidateTicket(ctx, ticketID, req.Validator); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"ticket_id": ticketID, "used": true})
}

type transferRequest struct {
	From models.Address `json:"from"`
	To   models.Address `json:"to"`
}

func (h *ContractHandler) TransferTicket(e *core.RequestEvent) error {
	ticketID, err := pathID(e, "ticketId")
	if err != nil {
		return err
	}
	var req transferRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	ticket, err := h.contract.TransferTicket(ctx, ticketID, req.From, req.To)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, ticket)
}

type refundRequest struct {
	Buyer models.Address `json:"buyer"`
}

func (h *ContractHandler) RefundTicket(e *core.RequestEvent) error {
	ticketID, err := pathID(e, "ticketId")
	if err != nil {
		return err
	}
	var req refundRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := h.contract.RefundTicket(ctx, ticketID, req.Buyer); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"ticket_id": ticketID, "refunded": true})
}

func (h *ContractHandler) GetEscrow(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	escrow, err := h.contract.GetEscrow(e.Request.Context(), eventID)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, escrow)
}

func (h *ContractHandler) ReleaseEscrow(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	var req organizerRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	amount, err := h.contract.ReleaseEscrow(ctx, req.Organizer, eventID)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"event_id": eventID, "amount": amount})
}

type signersRequest struct {
	Organizer models.Address   `json:"organizer"`
	Signers   []models.Address `json:"signers"`
	Threshold uint32           `json:"threshold"`
}

func (h *ContractHandler) SetEscrowSigners(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	var req signersRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := h.contract.SetEscrowSigners(ctx, req.Organizer, eventID, req.Signers, req.Threshold); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, models.EscrowConfig{EventID: eventID, Signers: req.Signers, Threshold: req.Threshold})
}

func (h *ContractHandler) GetEscrowConfig(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	cfg, err := h.contract.GetEscrowConfig(e.Request.Context(), eventID)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, cfg)
}

type signerRequest struct {
	Signer models.Address `json:"signer"`
}

func (h *ContractHandler) ApproveRelease(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	var req signerRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := h.contract.ApproveRelease(ctx, eventID, req.Signer); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"event_id": eventID, "signer": req.Signer, "approved": true})
}

func (h *ContractHandler) RevokeApproval(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	var req signerRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	if err := h.contract.RevokeApproval(ctx, eventID, req.Signer); err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"event_id": eventID, "signer": req.Signer, "approved": false})
}

func (h *ContractHandler) HasApproved(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	signer := models.Address(e.Request.PathValue("address"))
	ok, err := h.contract.HasApproved(e.Request.Context(), eventID, signer)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"approved": ok})
}

type distributeRequest struct {
	Destination models.Address `json:"destination"`
}

func (h *ContractHandler) DistributeEscrow(e *core.RequestEvent) error {
	eventID, err := pathID(e, "eventId")
	if err != nil {
		return err
	}
	var req distributeRequest
	ctx, err := h.signed(e, &req)
	if err != nil {
		return err
	}
	amount, err := h.contract.DistributeEscrow(ctx, eventID, req.Destination)
	if err != nil {
		return h.fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"event_id": eventID, "destination": req.Destination, "amount": amount})
}
