package web

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// page serves one static HTML page from the pages directory.
func (s *Server) page(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendFile(filepath.Join(s.pages, name))
	}
}

// handleListChats returns the conversation ids, numeric first.
func (s *Server) handleListChats(c *fiber.Ctx) error {
	ids, err := s.history.List()
	if err != nil {
		s.logger.Error("failed to list chats", "error", err)
		return c.JSON([]string{})
	}
	return c.JSON(ids)
}

// handleNewChat allocates the next conversation id.
func (s *Server) handleNewChat(c *fiber.Ctx) error {
	id, err := s.history.Create()
	if err != nil {
		s.logger.Error("failed to create chat", "error", err)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("created new chat", "chat_id", id)
	return c.JSON(fiber.Map{"chat_id": id})
}

// handleChatHistory returns the entries of one conversation; an absent
// conversation reads as empty.
func (s *Server) handleChatHistory(c *fiber.Ctx) error {
	chatID := c.Query("chat_id", "1")
	entries, err := s.history.Entries(chatID)
	if err != nil {
		s.logger.Error("failed to read chat history", "chat_id", chatID, "error", err)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(entries)
}

// handleUpload ingests one document into the knowledge base. Rejected
// file types still answer 200 with a descriptive message.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return c.JSON(fiber.Map{
			"message":        "Failed to upload file: " + err.Error(),
			"extracted_text": "",
		})
	}
	f, err := header.Open()
	if err != nil {
		return c.JSON(fiber.Map{
			"message":        "Failed to upload file " + header.Filename + ": " + err.Error(),
			"extracted_text": "",
		})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.JSON(fiber.Map{
			"message":        "Failed to upload file " + header.Filename + ": " + err.Error(),
			"extracted_text": "",
		})
	}

	result, err := s.knowledge.Upload(header.Filename, data)
	if err != nil {
		s.logger.Error("upload failed", "file", header.Filename, "error", err)
		return c.JSON(fiber.Map{
			"message":        "Failed to upload file " + header.Filename + ": " + err.Error(),
			"extracted_text": "",
		})
	}
	return c.JSON(fiber.Map{
		"message":        result.Message,
		"extracted_text": result.Preview,
	})
}

// handleSetKeys stores user-provided credentials. override_env governs
// precedence over environment keys.
func (s *Server) handleSetKeys(c *fiber.Ctx) error {
	var keys map[string]string
	if err := c.BodyParser(&keys); err != nil {
		return c.JSON(fiber.Map{"error": "Failed to set API keys: " + err.Error()})
	}
	overrideEnv := strings.EqualFold(keys["override_env"], "true")
	s.creds.SetKeys(keys, overrideEnv)
	s.logger.Info("API keys updated")
	return c.JSON(fiber.Map{"message": "API keys saved successfully."})
}

// handleSetSettings merges a partial settings update and persists the
// whole record.
func (s *Server) handleSetSettings(c *fiber.Ctx) error {
	var fields map[string]any
	if err := c.BodyParser(&fields); err != nil {
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if _, err := s.settings.Update(fields); err != nil {
		s.logger.Error("failed to set settings", "error", err)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("settings updated")
	return c.JSON(fiber.Map{"message": "Settings saved successfully."})
}

// handleResetSettings restores defaults and drops user credentials.
func (s *Server) handleResetSettings(c *fiber.Ctx) error {
	var body map[string]bool
	if err := c.BodyParser(&body); err != nil {
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if !body["reset"] {
		return c.JSON(fiber.Map{"error": "Invalid reset request"})
	}
	s.creds.Reset()
	if _, err := s.settings.Reset(); err != nil {
		s.logger.Error("failed to reset settings", "error", err)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("settings reset to defaults")
	return c.JSON(fiber.Map{"message": "Settings reset successfully."})
}

// handleClearChatHistory deletes every stored conversation.
func (s *Server) handleClearChatHistory(c *fiber.Ctx) error {
	var body map[string]bool
	if err := c.BodyParser(&body); err != nil {
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if !body["clear"] {
		return c.JSON(fiber.Map{"error": "Invalid clear request"})
	}
	if err := s.history.Clear(); err != nil {
		s.logger.Error("failed to clear chat history", "error", err)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("chat history cleared")
	return c.JSON(fiber.Map{"message": "Chat history cleared successfully."})
}

// handleClearKnowledgeBase deletes every stored document.
func (s *Server) handleClearKnowledgeBase(c *fiber.Ctx) error {
	var body map[string]bool
	if err := c.BodyParser(&body); err != nil {
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if !body["clear"] {
		return c.JSON(fiber.Map{"error": "Invalid clear request"})
	}
	if err := s.knowledge.Clear(); err != nil {
		s.logger.Error("failed to clear knowledge base", "error", err)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("knowledge base cleared")
	return c.JSON(fiber.Map{"message": "Knowledge base cleared successfully."})
}
