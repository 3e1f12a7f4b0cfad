package controller

import (
	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/pkg/serverutils"
	"llm-knowledge-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ICatalogController serves providers, models, vector stores and the tool
// registry.
type ICatalogController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
}

type catalogController struct {
	service service.ICatalogService
}

func NewCatalogController(service service.ICatalogService) ICatalogController {
	return &catalogController{service: service}
}

func (c *catalogController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	p := r.Group("/providers/v1")
	p.Use(auth)
	p.Get("", c.ListProviders)
	p.Post("", c.CreateProvider)
	p.Put(":id", c.UpdateProvider)
	p.Delete(":id", c.DeleteProvider)

	m := r.Group("/models/v1")
	m.Use(auth)
	m.Get("", c.ListModels)
	m.Post("", c.CreateModel)
	m.Put(":id", c.UpdateModel)
	m.Delete(":id", c.DeleteModel)

	s := r.Group("/stores/v1")
	s.Use(auth)
	s.Get("", c.ListStores)
	s.Post("", c.CreateStore)
	s.Get(":id", c.ShowStore)
	s.Put(":id", c.UpdateStore)
	s.Delete(":id", c.DeleteStore)

	t := r.Group("/tools/v1")
	t.Use(auth)
	t.Get("", c.ListTools)
}

func (c *catalogController) ListProviders(ctx *fiber.Ctx) error {
	res, err := c.service.ListProviders(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all providers", res))
}

func (c *catalogController) CreateProvider(ctx *fiber.Ctx) error {
	var req dto.ProviderRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.CreateProvider(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create provider", res))
}

func (c *catalogController) UpdateProvider(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}
	var req dto.ProviderRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	req.Id = id
	res, err := c.service.UpdateProvider(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update provider", res))
}

func (c *catalogController) DeleteProvider(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}
	if err := c.service.DeleteProvider(ctx.UserContext(), id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete provider", nil))
}

func (c *catalogController) ListModels(ctx *fiber.Ctx) error {
	res, err := c.service.ListModels(ctx.UserContext(), ctx.Query("use"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all models", res))
}

func (c *catalogController) CreateModel(ctx *fiber.Ctx) error {
	var req dto.ModelRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.CreateModel(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create model", res))
}

func (c *catalogController) UpdateModel(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}
	var req dto.ModelRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	req.Id = id
	res, err := c.service.UpdateModel(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update model", res))
}

func (c *catalogController) DeleteModel(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}
	if err := c.service.DeleteModel(ctx.UserContext(), id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete model", nil))
}

func (c *catalogController) ListStores(ctx *fiber.Ctx) error {
	res, err := c.service.ListStores(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all stores", res))
}

func (c *catalogController) ShowStore(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}
	res, err := c.service.ShowStore(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show store", res))
}

func (c *catalogController) CreateStore(ctx *fiber.Ctx) error {
	var req dto.StoreRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	res, err := c.service.CreateStore(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create store", res))
}

func (c *catalogController) UpdateStore(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}
	var req dto.StoreRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	req.Id = id
	res, err := c.service.UpdateStore(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update store", res))
}

func (c *catalogController) DeleteStore(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}
	if err := c.service.DeleteStore(ctx.UserContext(), id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete store", nil))
}

func (c *catalogController) ListTools(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get all tools", c.service.ListTools(ctx.UserContext())))
}
