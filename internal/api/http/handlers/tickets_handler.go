package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/auth"
	"github.com/spec-kit/dispatch-service/internal/pipeline"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/service"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// TicketsHandler serves the read-side tools. Reads share the mutation
// contract's role policy but skip the pipeline: no idempotency, no
// transaction, no audit.
type TicketsHandler struct {
	store *repository.ReadStore
}

func NewTicketsHandler(store *repository.ReadStore) *TicketsHandler {
	return &TicketsHandler{store: store}
}

func (h *TicketsHandler) authorizeRead(c *fiber.Ctx, toolName string) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	env := &pipeline.RequestEnvelope{Actor: actor, ToolName: toolName}
	_, err = pipeline.Authorize(env)
	return err
}

// Get serves ticket.get.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	if err := h.authorizeRead(c, "ticket.get"); err != nil {
		return err
	}
	ticketID := c.Params("ticketId")
	ticket, err := h.store.GetTicket(c.UserContext(), ticketID)
	if err != nil {
		return util.NewInternalError(err)
	}
	if ticket == nil {
		return util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return c.JSON(service.NewTicketView(ticket))
}

// ListEvidence serves closeout.list_evidence.
func (h *TicketsHandler) ListEvidence(c *fiber.Ctx) error {
	if err := h.authorizeRead(c, "closeout.list_evidence"); err != nil {
		return err
	}
	ticketID := c.Params("ticketId")
	ticket, err := h.store.GetTicket(c.UserContext(), ticketID)
	if err != nil {
		return util.NewInternalError(err)
	}
	if ticket == nil {
		return util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}

	items, err := h.store.ListEvidence(c.UserContext(), ticketID)
	if err != nil {
		return util.NewInternalError(err)
	}
	views := make([]service.EvidenceView, 0, len(items))
	for i := range items {
		views = append(views, service.NewEvidenceView(&items[i]))
	}
	return c.JSON(fiber.Map{
		"ticket_id": ticketID,
		"evidence":  views,
	})
}

// Timeline serves ticket.timeline: the transition log and audit trail
// in one chronological view.
func (h *TicketsHandler) Timeline(c *fiber.Ctx) error {
	if err := h.authorizeRead(c, "ticket.timeline"); err != nil {
		return err
	}
	ticketID := c.Params("ticketId")
	ticket, err := h.store.GetTicket(c.UserContext(), ticketID)
	if err != nil {
		return util.NewInternalError(err)
	}
	if ticket == nil {
		return util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}

	transitions, err := h.store.ListTransitions(c.UserContext(), ticketID)
	if err != nil {
		return util.NewInternalError(err)
	}
	audits, err := h.store.ListAuditEvents(c.UserContext(), ticketID)
	if err != nil {
		return util.NewInternalError(err)
	}

	transitionViews := make([]service.TransitionView, 0, len(transitions))
	for _, entry := range transitions {
		transitionViews = append(transitionViews, service.NewTransitionView(entry))
	}
	auditViews := make([]service.AuditView, 0, len(audits))
	for _, event := range audits {
		auditViews = append(auditViews, service.NewAuditView(event))
	}

	return c.JSON(fiber.Map{
		"ticket_id":    ticketID,
		"state":        ticket.State,
		"transitions":  transitionViews,
		"audit_events": auditViews,
	})
}
