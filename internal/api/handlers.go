package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/matheus3301/inbox/internal/inbox"
	"github.com/matheus3301/inbox/internal/store"
)

func (s *Server) health(c *fiber.Ctx) error {
	state := s.machine.Current()
	code := fiber.StatusOK
	label := "OK"
	if !state.Serving() {
		code = fiber.StatusServiceUnavailable
		label = "UNAVAILABLE"
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    label,
		"state":     state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	convs, err := s.svc.ListConversations(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(convs)
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	msgs, err := s.svc.ListMessages(c.UserContext(),
		c.Params("conversationId"), c.QueryInt("page", 1), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	return c.JSON(msgs)
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := decodeBody(c, &req, false); err != nil {
		return err
	}
	msg, err := s.svc.SendMessage(c.UserContext(), inbox.SendRequest{
		ConversationID: req.ConversationID,
		Body:           req.Body,
		DisplayName:    req.DisplayName,
		Kind:           req.Kind,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) setMessageStatus(c *fiber.Ctx) error {
	var req setStatusRequest
	if err := decodeBody(c, &req, false); err != nil {
		return err
	}
	msg, err := s.svc.SetMessageStatus(c.UserContext(), c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	// A missing target answers with JSON null.
	return c.JSON(msg)
}

func (s *Server) processPayload(c *fiber.Ctx) error {
	res, err := s.svc.IngestPayload(c.UserContext(), c.Body())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "Payload processed successfully",
		"created":       res.Created,
		"statusUpdates": res.StatusUpdates,
	})
}

func (s *Server) loadSampleData(c *fiber.Ctx) error {
	var req loadSampleRequest
	if err := decodeBody(c, &req, true); err != nil {
		return err
	}
	res, err := s.svc.IngestSampleDir(c.UserContext(), req.Path)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"processedFiles": res.ProcessedFiles,
		"created":        res.Created,
		"statusUpdates":  res.StatusUpdates,
		"message": fmt.Sprintf("Sample data loaded successfully. Processed %d messages from %d files.",
			res.Created, res.ProcessedFiles),
	})
}

func (s *Server) searchMessages(c *fiber.Ctx) error {
	res, err := s.svc.SearchMessages(c.UserContext(), c.Query("q"), c.Query("wa_id"), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	if res == nil {
		res = []store.SearchResult{}
	}
	return c.JSON(res)
}

func (s *Server) debugMessages(c *fiber.Ctx) error {
	st, err := s.svc.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(st)
}
