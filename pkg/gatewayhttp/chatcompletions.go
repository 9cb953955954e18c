package gatewayhttp

import (
	"bufio"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kiro-gateway/gateway/pkg/gatewayapi"
	"github.com/kiro-gateway/gateway/pkg/gatewaystream"
	"github.com/kiro-gateway/gateway/pkg/upstream"
)

func (s *Server) handleChatCompletions(c *fiber.Ctx) error {
	var req gatewayapi.OpenAIRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	body, err := req.BuildUpstreamBody()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	ctx := c.Context()

	sel, err := s.pool.Select(ctx)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "no credentials available"})
	}

	resp, err := s.client.Send(ctx, sel.Token, body)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	defer resp.Body.Close()

	if req.Stream {
		return s.streamOpenAI(c, resp, req.Model)
	}
	return s.collectOpenAI(c, resp, req.Model)
}

func (s *Server) streamOpenAI(c *fiber.Ctx, resp *upstream.Response, model string) error {
	emitter := gatewaystream.NewOpenAIEmitter("chatcmpl-"+model, model, time.Now().Unix())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		s.writeStream(c, func(w *bufio.Writer) {
			writer := gatewaystream.NewWriter(w)
			for _, ev := range emitter.NonOK(resp.StatusCode, string(errBody)) {
				_ = writer.WriteEvent(ev)
			}
			_ = writer.WriteDone()
			_ = w.Flush()
		})
		return nil
	}

	s.writeStream(c, func(w *bufio.Writer) {
		writer := gatewaystream.NewWriter(w)
		for _, ev := range emitter.Start() {
			_ = writer.WriteEvent(ev)
		}
		_ = w.Flush()

		terminatedEarly := false
		s.pumpEventstream(resp.Body, func(ev upstream.Event) bool {
			chunks, shouldTerminate := emitter.HandleEvent(ev)
			for _, out := range chunks {
				_ = writer.WriteEvent(out)
			}
			_ = w.Flush()
			if shouldTerminate {
				terminatedEarly = true
				return false
			}
			return true
		})

		if !terminatedEarly {
			for _, ev := range emitter.Finish() {
				_ = writer.WriteEvent(ev)
			}
		}
		_ = writer.WriteDone()
		_ = w.Flush()
	})
	return nil
}

func (s *Server) collectOpenAI(c *fiber.Ctx, resp *upstream.Response, model string) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		return c.Status(resp.StatusCode).JSON(fiber.Map{"error": string(errBody)})
	}

	collector := gatewaystream.NewCollector(s.log)
	s.pumpEventstream(resp.Body, func(ev upstream.Event) bool {
		collector.HandleEvent(ev)
		return true
	})
	collected := collector.Finish()
	finishReason := gatewaystream.ResolveOpenAI(gatewaystream.ResolveCollected(collected))

	return c.JSON(fiber.Map{
		"id":      "chatcmpl-" + model,
		"object":  "chat.completion",
		"model":   model,
		"choices": []fiber.Map{openAIChoiceFromCollected(collected, finishReason)},
	})
}

func openAIChoiceFromCollected(c gatewaystream.Collected, finishReason string) fiber.Map {
	message := fiber.Map{"role": "assistant", "content": c.Text}
	if len(c.ToolUses) > 0 {
		var toolCalls []fiber.Map
		for _, tu := range c.ToolUses {
			toolCalls = append(toolCalls, fiber.Map{
				"id":   tu.ID,
				"type": "function",
				"function": fiber.Map{
					"name":      tu.Name,
					"arguments": tu.Input,
				},
			})
		}
		message["tool_calls"] = toolCalls
	}
	return fiber.Map{
		"index":         0,
		"message":       message,
		"finish_reason": finishReason,
	}
}
