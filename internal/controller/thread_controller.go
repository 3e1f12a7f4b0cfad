package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"llm-knowledge-be/internal/dto"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/internal/pkg/serverutils"
	"llm-knowledge-be/internal/service"
	internalWS "llm-knowledge-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type IThreadController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Update(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
	Messages(ctx *fiber.Ctx) error
	Generate(ctx *fiber.Ctx) error
	ServeWs(ctx *fiber.Ctx) error
}

type threadController struct {
	service service.IThreadService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewThreadController(service service.IThreadService, hub *internalWS.Hub, log logger.ILogger) IThreadController {
	return &threadController{service: service, hub: hub, logger: log}
}

func (c *threadController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/threads/v1")
	h.Use(auth)
	h.Get("", c.GetAll)
	h.Post("", c.Create)
	h.Get(":id", c.Show)
	h.Put(":id", c.Update)
	h.Delete(":id", c.Delete)
	h.Get(":id/messages", c.Messages)
	h.Post(":id/generate", c.Generate)
	h.Get(":id/ws", c.ServeWs)
}

func (c *threadController) GetAll(ctx *fiber.Ctx) error {
	res, err := c.service.GetAll(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all threads", res))
}

func (c *threadController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateThreadRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.Create(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create thread", res))
}

func (c *threadController) Show(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.Show(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show thread", res))
}

func (c *threadController) Update(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.UpdateThreadRequest
	if err := serverutils.ParseBody(ctx, &req); err != nil {
		return err
	}
	req.Id = id

	res, err := c.service.Update(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update thread", res))
}

func (c *threadController) Delete(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.service.Delete(ctx.UserContext(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete thread", nil))
}

func (c *threadController) Messages(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.ListMessages(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get thread messages", res))
}

// Generate runs one response cycle. Clients that accept text/event-stream
// get every event as it happens; others get the full event list once the
// cycle is over.
func (c *threadController) Generate(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.GenerateRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	if ctx.Accepts(fiber.MIMEApplicationJSON, "text/event-stream") != "text/event-stream" {
		events, err := c.service.Generate(ctx.UserContext(), id, req.Body)
		if err != nil {
			return err
		}
		collected := make([]dto.ThreadEvent, 0, 8)
		for ev := range events {
			collected = append(collected, ev)
		}
		return ctx.JSON(serverutils.SuccessResponse("Generation finished", collected))
	}

	// The stream writer runs after this handler returns, so the cycle gets
	// its own context, cancelled when the client goes away.
	genCtx, cancel := context.WithCancel(context.Background())
	events, err := c.service.Generate(genCtx, id, req.Body)
	if err != nil {
		cancel()
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			if err := w.Flush(); err != nil {
				c.logger.Debug("Thread", "SSE client went away", map[string]interface{}{"thread_id": id})
				cancel()
				for range events {
				}
				return
			}
		}
	})
	return nil
}

// ServeWs streams every event of the thread to the peer. A text frame of the
// form {"body": "..."} starts a generation cycle.
func (c *threadController) ServeWs(ctx *fiber.Ctx) error {
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}
	if _, err := c.service.Show(ctx.UserContext(), id); err != nil {
		return err
	}
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		c.logger.Info("Thread", "Starting websocket session", map[string]interface{}{"thread_id": id})
		internalWS.ServeWs(c.hub, conn, id, func(data []byte) {
			c.generateFromSocket(id, data)
		})
		c.logger.Info("Thread", "Websocket session ended", map[string]interface{}{"thread_id": id})
	})(ctx)
}

// generateFromSocket starts a cycle in the background. Its events reach the
// socket through the hub, so the channel is only drained here.
func (c *threadController) generateFromSocket(threadID uuid.UUID, data []byte) {
	var req dto.GenerateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.hub.Broadcast(threadID, dto.ThreadEvent{Type: dto.EventError, ThreadId: threadID, Error: "invalid message: " + err.Error()})
		return
	}
	events, err := c.service.Generate(context.Background(), threadID, req.Body)
	if err != nil {
		c.hub.Broadcast(threadID, dto.ThreadEvent{Type: dto.EventError, ThreadId: threadID, Error: err.Error()})
		return
	}
	go func() {
		for range events {
		}
	}()
}
