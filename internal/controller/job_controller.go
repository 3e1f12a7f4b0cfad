package controller

import (
	"context"

	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/pkg/serverutils"
	"llm-knowledge-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IJobController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
	Webhook(ctx *fiber.Ctx) error
	Queues(ctx *fiber.Ctx) error
	QueueStats(ctx *fiber.Ctx) error
	UpdateQueue(ctx *fiber.Ctx) error
	ProcessQueues(ctx *fiber.Ctx) error
	CheckStatuses(ctx *fiber.Ctx) error
}

type jobController struct {
	service service.IGenerationJobService
}

func NewJobController(service service.IGenerationJobService) IJobController {
	return &jobController{service: service}
}

func (c *jobController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/jobs/v1")
	// Providers call the webhook without credentials; it is registered ahead
	// of the auth middleware and only accepts payloads for running jobs.
	h.Post("webhook/:id", c.Webhook)

	h.Use(auth)
	h.Get("", c.GetAll)
	h.Post("", c.Create)
	h.Get("queues", c.Queues)
	h.Post("queues/process", c.ProcessQueues)
	h.Post("queues/check", c.CheckStatuses)
	h.Get("queues/:modelId", c.QueueStats)
	h.Put("queues/:modelId", c.UpdateQueue)
	h.Get(":id", c.Show)
	h.Post(":id/queue", c.transition(c.service.Queue, "Job queued"))
	h.Post(":id/cancel", c.transition(c.service.Cancel, "Job cancelled"))
	h.Post(":id/retry", c.transition(c.service.Retry, "Job requeued"))
	h.Post(":id/refresh", c.transition(c.service.Refresh, "Job refreshed"))
}

func (c *jobController) GetAll(ctx *fiber.Ctx) error {
	threadID, err := serverutils.QueryUUID(ctx, "thread_id")
	if err != nil {
		return err
	}
	modelID, err := serverutils.QueryUUID(ctx, "model_id")
	if err != nil {
		return err
	}
	req := &dto.ListJobsRequest{
		ThreadId: threadID,
		ModelId:  modelID,
		State:    ctx.Query("state"),
		Page:     ctx.QueryInt("page", 1),
		PageSize: ctx.QueryInt("page_size", 20),
	}

	res, total, err := c.service.GetAll(ctx.UserContext(), req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.PageResponse("Success get all jobs", res, total, req.Page, req.PageSize))
}

// Create stores a draft job and queues it right away unless ?draft=true.
func (c *jobController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateGenerationJobRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}

	job, err := c.service.Create(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	if !ctx.QueryBool("draft") {
		if err := c.service.Queue(ctx.UserContext(), job.Id); err != nil {
			return err
		}
		if job, err = c.service.Show(ctx.UserContext(), job.Id); err != nil {
			return err
		}
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create job", job))
}

func (c *jobController) Show(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.Show(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show job", res))
}

func (c *jobController) transition(apply func(ctx context.Context, id uuid.UUID) error, message string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id, err := serverutils.ParamUUID(ctx, "id")
		if err != nil {
			return err
		}
		if err := apply(ctx.UserContext(), id); err != nil {
			return err
		}

		res, err := c.service.Show(ctx.UserContext(), id)
		if err != nil {
			return err
		}
		return ctx.JSON(serverutils.SuccessResponse(message, res))
	}
}

func (c *jobController) Webhook(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.service.HandleWebhook(ctx.UserContext(), id, ctx.Body()); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Webhook accepted", nil))
}

func (c *jobController) Queues(ctx *fiber.Ctx) error {
	res, err := c.service.ListQueues(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all queues", res))
}

func (c *jobController) QueueStats(ctx *fiber.Ctx) error {
	modelID, err := serverutils.ParamUUID(ctx, "modelId")
	if err != nil {
		return err
	}
	res, err := c.service.QueueStats(ctx.UserContext(), modelID)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get queue stats", res))
}

func (c *jobController) UpdateQueue(ctx *fiber.Ctx) error {
	modelID, err := serverutils.ParamUUID(ctx, "modelId")
	if err != nil {
		return err
	}
	var req dto.QueueSettingsRequest
	req.ModelId = modelID
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	req.ModelId = modelID

	res, err := c.service.UpdateQueueSettings(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update queue settings", res))
}

func (c *jobController) ProcessQueues(ctx *fiber.Ctx) error {
	res, err := c.service.ProcessAllQueues(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success process queues", res))
}

func (c *jobController) CheckStatuses(ctx *fiber.Ctx) error {
	res, err := c.service.CheckJobStatuses(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success check job statuses", res))
}
