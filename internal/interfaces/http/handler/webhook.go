package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	appwebhook "github.com/syncbridge/backend/internal/application/webhook"
	"github.com/syncbridge/backend/internal/domain/queue"
	"github.com/syncbridge/backend/internal/domain/webhook"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// WebhookHandler handles webhook intake and the operational endpoints
type WebhookHandler struct {
	BaseHandler
	intake      *appwebhook.IntakeService
	retry       *appwebhook.RetryService
	status      *appwebhook.StatusService
	recentLimit int
	logger      *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	intake *appwebhook.IntakeService,
	retry *appwebhook.RetryService,
	status *appwebhook.StatusService,
	recentLimit int,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		intake:      intake,
		retry:       retry,
		status:      status,
		recentLimit: recentLimit,
		logger:      logger,
	}
}

// receiveResponse is the body returned to the platform on intake
type receiveResponse struct {
	DeliveryID string `json:"delivery_id"`
	Status     string `json:"status"`
	JobsQueued int    `json:"jobs_queued"`
}

// wireStatus translates a processing outcome into the status vocabulary the
// platforms see. The stored outcome is an audit value; the response tells the
// sender what happened to this push.
func wireStatus(outcome webhook.Outcome) string {
	switch outcome {
	case webhook.OutcomeSuccess:
		return "queued"
	case webhook.OutcomeDuplicate:
		return "already_processed"
	case webhook.OutcomeNoMapping:
		return "no_mapping"
	default:
		return "error_logged"
	}
}

// Receive accepts one signed webhook delivery. The signature middleware has
// already verified and buffered the body. Internal faults still answer 200:
// the payload is on record, and a platform redelivery would only duplicate
// work the retry endpoint can do on demand.
func (h *WebhookHandler) Receive(c *gin.Context) {
	deliveryID := c.GetString(middleware.ContextKeyDeliveryID)
	topic := c.GetString(middleware.ContextKeyTopic)
	shopDomain := c.GetString(middleware.ContextKeyShopDomain)
	source, _ := c.MustGet(middleware.ContextKeySource).(webhook.Source)
	body, _ := c.MustGet(middleware.ContextKeyRawBody).([]byte)

	// Tag the request context so every downstream log and query trace carries
	// the delivery id.
	ctx, _ := logger.WithDeliveryID(c.Request.Context(), h.logger, deliveryID)

	result, err := h.intake.Handle(ctx, appwebhook.Inbound{
		DeliveryID: deliveryID,
		Source:     source,
		Topic:      topic,
		ShopDomain: shopDomain,
		Body:       body,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		// Only invalid input reaches here; a malformed push is the sender's
		// fault and safe to refuse.
		h.BadRequest(c, err.Error())
		return
	}

	h.Success(c, receiveResponse{
		DeliveryID: deliveryID,
		Status:     wireStatus(result.Outcome),
		JobsQueued: result.JobsQueued,
	})
}

// Status reports queue depths, delivery outcome totals and recent deliveries
func (h *WebhookHandler) Status(c *gin.Context) {
	report, err := h.status.Report(c.Request.Context(), h.recentLimit)
	if err != nil {
		h.logger.Error("failed to build status report", zap.Error(err))
		h.InternalError(c, "failed to build status report")
		return
	}
	h.Success(c, report)
}

// Retry re-drives a stored delivery from its persisted payload
func (h *WebhookHandler) Retry(c *gin.Context) {
	deliveryID := c.Param("deliveryId")

	result, err := h.retry.Retry(c.Request.Context(), deliveryID)
	if err != nil {
		if errors.Is(err, webhook.ErrDeliveryNotFound) {
			h.NotFound(c, "delivery not found")
			return
		}
		h.logger.Error("failed to retry delivery",
			zap.String("delivery_id", deliveryID), zap.Error(err))
		h.InternalError(c, "failed to retry delivery")
		return
	}

	h.Success(c, receiveResponse{
		DeliveryID: deliveryID,
		Status:     wireStatus(result.Outcome),
		JobsQueued: result.JobsQueued,
	})
}

// deadJobResponse is one dead-letter job in the listing
type deadJobResponse struct {
	JobID     string `json:"job_id"`
	QueueName string `json:"queue_name"`
	Attempt   int    `json:"attempt"`
	LastError string `json:"last_error"`
	Payload   string `json:"payload"`
	UpdatedAt string `json:"updated_at"`
}

// DeadJobs lists jobs that exhausted their retry budget
func (h *WebhookHandler) DeadJobs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	jobs, total, err := h.status.DeadJobs(c.Request.Context(), page, pageSize)
	if err != nil {
		h.logger.Error("failed to list dead jobs", zap.Error(err))
		h.InternalError(c, "failed to list dead jobs")
		return
	}

	items := make([]deadJobResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, deadJobResponse{
			JobID:     job.JobID,
			QueueName: job.QueueName,
			Attempt:   job.Attempt,
			LastError: job.LastError,
			Payload:   string(job.Payload),
			UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	h.SuccessWithMeta(c, items, total, page, pageSize)
}

// RequeueJob returns a dead or permanently failed job to the waiting state
func (h *WebhookHandler) RequeueJob(c *gin.Context) {
	jobID := c.Param("jobId")

	job, err := h.status.RequeueDead(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			h.NotFound(c, "job not found")
			return
		}
		h.logger.Warn("failed to requeue job",
			zap.String("job_id", jobID), zap.Error(err))
		h.Conflict(c, err.Error())
		return
	}

	h.Success(c, gin.H{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}
