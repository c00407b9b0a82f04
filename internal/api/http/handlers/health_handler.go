package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/closeout"
	"github.com/spec-kit/dispatch-service/internal/persistence"
	"github.com/spec-kit/dispatch-service/internal/policy"
	"github.com/spec-kit/dispatch-service/internal/repository"
)

// HealthHandler responds to liveness, readiness and contract-drift
// probes.
type HealthHandler struct {
	serviceName string
	version     string
	postgres    *persistence.Postgres
	redis       *persistence.Redis
	reads       *repository.ReadStore
	verifier    *closeout.EvidenceVerifier
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis, reads *repository.ReadStore, verifier *closeout.EvidenceVerifier) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		postgres:    postgres,
		redis:       redis,
		reads:       reads,
		verifier:    verifier,
	}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	if err := h.postgres.Ping(ctx); err != nil {
		depStatus["postgres"] = err.Error()
		ready = false
	} else {
		depStatus["postgres"] = "ok"
	}

	if err := h.redis.Ping(ctx); err != nil {
		depStatus["redis"] = err.Error()
		ready = false
	} else {
		depStatus["redis"] = "ok"
	}

	status := fiber.StatusOK
	statusText := "ready"
	if !ready {
		status = fiber.StatusServiceUnavailable
		statusText = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":       statusText,
		"dependencies": depStatus,
	})
}

// Drift compares the contract's transition graph against the
// datastore's edge table. Any disagreement makes the probe fail, with
// the offending edges listed.
func (h *HealthHandler) Drift(c *fiber.Ctx) error {
	edges, err := h.reads.TransitionEdges(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unknown",
			"error":  err.Error(),
		})
	}

	report := policy.DetectDrift(edges)
	headMode, checksumMode := h.verifier.Modes()

	status := fiber.StatusOK
	statusText := "healthy"
	if !report.Healthy() {
		status = fiber.StatusServiceUnavailable
		statusText = "drift"
	}
	return c.Status(status).JSON(fiber.Map{
		"status": statusText,
		"drift":  report,
		"evidence_enforcement": fiber.Map{
			"head_validation": headMode,
			"checksum":        checksumMode,
		},
	})
}

// Contract exposes the tool catalog for client generation and
// operator inspection.
func (h *HealthHandler) Contract(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tools": policy.Export()})
}
