package controller

import (
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/pkg/serverutils"
	"llm-knowledge-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IResourceController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Update(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
	Chunks(ctx *fiber.Ctx) error
	Attachment(ctx *fiber.Ctx) error
	Process(ctx *fiber.Ctx) error
	RunStage(stage string) fiber.Handler
}

type resourceController struct {
	service  service.IResourceService
	pipeline service.IPipelineService
}

func NewResourceController(service service.IResourceService, pipeline service.IPipelineService) IResourceController {
	return &resourceController{service: service, pipeline: pipeline}
}

func (c *resourceController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/resources/v1")
	h.Use(auth)
	h.Get("", c.GetAll)
	h.Post("", c.Create)
	h.Post("process", c.Process)
	h.Post("retrieve", c.RunStage("retrieve"))
	h.Post("parse", c.RunStage("parse"))
	h.Post("chunk", c.RunStage("chunk"))
	h.Post("embed", c.RunStage("embed"))
	h.Post("unlock", c.RunStage("unlock"))
	h.Post("reset", c.RunStage("reset"))
	h.Get(":id", c.Show)
	h.Put(":id", c.Update)
	h.Delete(":id", c.Delete)
	h.Get(":id/chunks", c.Chunks)
	h.Get(":id/attachments/:name", c.Attachment)
}

func (c *resourceController) GetAll(ctx *fiber.Ctx) error {
	collectionID, err := serverutils.QueryUUID(ctx, "collection_id")
	if err != nil {
		return err
	}
	req := &dto.ListResourcesRequest{
		CollectionId: collectionID,
		State:        ctx.Query("state"),
		Search:       ctx.Query("search"),
		Page:         ctx.QueryInt("page", 1),
		PageSize:     ctx.QueryInt("page_size", 20),
	}

	res, total, err := c.service.GetAll(ctx.UserContext(), req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.PageResponse("Success get all resources", res, total, req.Page, req.PageSize))
}

func (c *resourceController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateResourceRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.Create(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create resource", res))
}

func (c *resourceController) Show(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.Show(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show resource", res))
}

func (c *resourceController) Update(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.UpdateResourceRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	req.Id = id

	res, err := c.service.Update(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update resource", res))
}

func (c *resourceController) Delete(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.service.Delete(ctx.UserContext(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete resource", nil))
}

func (c *resourceController) Chunks(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.ListChunks(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get resource chunks", res))
}

func (c *resourceController) Attachment(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	att, err := c.service.GetAttachment(ctx.UserContext(), id, ctx.Params("name"))
	if err != nil {
		return err
	}

	if att.MimeType != "" {
		ctx.Set(fiber.HeaderContentType, att.MimeType)
	}
	return ctx.Send(att.Data)
}

// Process runs the whole pipeline for the given resources. With ?async=true
// the ids are queued for the background consumer instead.
func (c *resourceController) Process(ctx *fiber.Ctx) error {
	var req dto.ResourceIdsRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}

	if ctx.QueryBool("async") {
		if err := c.service.EnqueueProcessing(ctx.UserContext(), req.ResourceIds); err != nil {
			return err
		}
		return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Resources queued for processing", req.ResourceIds))
	}

	res, err := c.pipeline.Process(ctx.UserContext(), req.ResourceIds)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success process resources", res))
}

// RunStage exposes a single pipeline step over the resource ids in the body.
func (c *resourceController) RunStage(stage string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var req dto.ResourceIdsRequest
		if err := serverutils.ParseBody(ctx, &req); err != nil {
			return err
		}

		var (
			res *dto.PipelineReport
			err error
		)
		ids := req.ResourceIds
		switch stage {
		case "retrieve":
			res, err = c.pipeline.Retrieve(ctx.UserContext(), ids)
		case "parse":
			res, err = c.pipeline.Parse(ctx.UserContext(), ids)
		case "chunk":
			res, err = c.pipeline.Chunk(ctx.UserContext(), ids)
		case "embed":
			res, err = c.pipeline.Embed(ctx.UserContext(), ids)
		case "unlock":
			return c.ack(ctx, "Success unlock resources", ids, c.pipeline.Unlock(ctx.UserContext(), ids))
		case "reset":
			return c.ack(ctx, "Success reset resources", ids, c.pipeline.Reset(ctx.UserContext(), ids))
		default:
			return fiber.ErrNotFound
		}
		if err != nil {
			return err
		}

		return ctx.JSON(serverutils.SuccessResponse("Success "+stage+" resources", res))
	}
}

func (c *resourceController) ack(ctx *fiber.Ctx, message string, ids []uuid.UUID, err error) error {
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse(message, ids))
}
