package controller

import (
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/pkg/serverutils"
	"llm-knowledge-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ICollectionController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Update(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
	AddResources(ctx *fiber.Ctx) error
	RemoveResources(ctx *fiber.Ctx) error
	ApplyDefaults(ctx *fiber.Ctx) error
	Embed(ctx *fiber.Ctx) error
	Reindex(ctx *fiber.Ctx) error
}

type collectionController struct {
	service service.ICollectionService
}

func NewCollectionController(service service.ICollectionService) ICollectionController {
	return &collectionController{service: service}
}

func (c *collectionController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/collections/v1")
	h.Use(auth)
	h.Get("", c.GetAll)
	h.Post("", c.Create)
	h.Get(":id", c.Show)
	h.Put(":id", c.Update)
	h.Delete(":id", c.Delete)
	h.Post(":id/resources", c.AddResources)
	h.Delete(":id/resources", c.RemoveResources)
	h.Post(":id/apply-defaults", c.ApplyDefaults)
	h.Post(":id/embed", c.Embed)
	h.Post(":id/reindex", c.Reindex)
}

func (c *collectionController) GetAll(ctx *fiber.Ctx) error {
	res, err := c.service.GetAll(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get all collections", res))
}

func (c *collectionController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateCollectionRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.Create(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create collection", res))
}

func (c *collectionController) Show(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.Show(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show collection", res))
}

func (c *collectionController) Update(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.UpdateCollectionRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	req.Id = id

	res, err := c.service.Update(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update collection", res))
}

func (c *collectionController) Delete(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.service.Delete(ctx.UserContext(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete collection", nil))
}

func (c *collectionController) membership(ctx *fiber.Ctx) (uuid.UUID, []uuid.UUID, error) {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return uuid.Nil, nil, err
	}
	var req dto.ResourceIdsRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return uuid.Nil, nil, err
	}
	return id, req.ResourceIds, nil
}

func (c *collectionController) AddResources(ctx *fiber.Ctx) error {
	id, ids, err := c.membership(ctx)
	if err != nil {
		return err
	}

	if err := c.service.AddResources(ctx.UserContext(), id, ids); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success add resources to collection", ids))
}

func (c *collectionController) RemoveResources(ctx *fiber.Ctx) error {
	id, ids, err := c.membership(ctx)
	if err != nil {
		return err
	}

	if err := c.service.RemoveResources(ctx.UserContext(), id, ids); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success remove resources from collection", ids))
}

func (c *collectionController) ApplyDefaults(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	updated, err := c.service.ApplyDefaults(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success apply collection defaults", fiber.Map{"updated": updated}))
}

// Embed embeds the listed member resources, or every chunked member when the
// body is empty.
func (c *collectionController) Embed(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	var req struct {
		ResourceIds []uuid.UUID `json:"resource_ids"`
	}
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	res, err := c.service.EmbedResources(ctx.UserContext(), id, req.ResourceIds)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success embed collection", res))
}

func (c *collectionController) Reindex(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.Reindex(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success reindex collection", res))
}
