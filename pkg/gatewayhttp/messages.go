package gatewayhttp

import (
	"bufio"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kiro-gateway/gateway/pkg/eventstream"
	"github.com/kiro-gateway/gateway/pkg/gatewayapi"
	"github.com/kiro-gateway/gateway/pkg/gatewaystream"
	"github.com/kiro-gateway/gateway/pkg/upstream"
)

const decoderErrorBudget = 16

func (s *Server) handleCountTokens(c *fiber.Ctx) error {
	var req gatewayapi.AnthropicRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"input_tokens": req.EstimateInputTokens()})
}

func (s *Server) handleMessages(c *fiber.Ctx) error {
	var req gatewayapi.AnthropicRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	inputTokens := req.EstimateInputTokens()
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
		return s.streamAnthropic(c, resp, req.Model, inputTokens)
	}
	return s.collectAnthropic(c, resp, req.Model, inputTokens)
}

func (s *Server) streamAnthropic(c *fiber.Ctx, resp *upstream.Response, model string, inputTokens int) error {
	emitter := gatewaystream.NewAnthropicEmitter(model, inputTokens)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		s.writeStream(c, func(w *bufio.Writer) {
			writer := gatewaystream.NewWriter(w)
			for _, ev := range emitter.NonOK(resp.StatusCode, string(errBody)) {
				_ = writer.WriteEvent(ev)
			}
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

		s.pumpEventstream(resp.Body, func(ev upstream.Event) bool {
			for _, out := range emitter.HandleEvent(ev) {
				_ = writer.WriteEvent(out)
			}
			_ = w.Flush()
			return true // Anthropic SSE keeps reading through exceptions
		})

		for _, ev := range emitter.Finish() {
			_ = writer.WriteEvent(ev)
		}
		_ = w.Flush()
	})
	return nil
}

func (s *Server) collectAnthropic(c *fiber.Ctx, resp *upstream.Response, model string, inputTokens int) error {
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

	outputTokens := gatewaystream.FloorOutputTokens(
		gatewaystream.TextTokens(collected.Text), len(collected.Text) > 0 || len(collected.ToolUses) > 0)

	return c.JSON(fiber.Map{
		"id":          "msg_" + model,
		"type":        "message",
		"role":        "assistant",
		"model":       model,
		"content":     anthropicContentFromCollected(collected),
		"stop_reason": gatewaystream.ResolveCollected(collected),
		"usage": fiber.Map{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		},
	})
}

func anthropicContentFromCollected(c gatewaystream.Collected) []fiber.Map {
	var blocks []fiber.Map
	if c.Text != "" {
		blocks = append(blocks, fiber.Map{"type": "text", "text": c.Text})
	}
	for _, tu := range c.ToolUses {
		blocks = append(blocks, fiber.Map{
			"type":  "tool_use",
			"id":    tu.ID,
			"name":  tu.Name,
			"input": tu.Input,
		})
	}
	return blocks
}

// pumpEventstream drains r through the frame decoder and event
// interpreter, invoking onEvent for each typed upstream.Event. onEvent
// returns false to stop reading early (spec §4.G's
// ContentLengthExceeded-triggered early termination).
func (s *Server) pumpEventstream(r io.Reader, onEvent func(upstream.Event) bool) {
	dec := eventstream.NewDecoder(decoderErrorBudget)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				msg, ok, err := dec.Next()
				if err != nil {
					s.log.Warn("eventstream decoder failed", zap.Error(err))
					return
				}
				if !ok {
					break
				}
				ev := upstream.Interpret(msg)
				if !onEvent(ev) {
					return
				}
			}
		}
		if readErr != nil {
			return
		}
	}
}
