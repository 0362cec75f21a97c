package api

import (
	"fmt"
	"io"
	"log/slog"
	"receiptagent/app/service/queue"
	"receiptagent/app/service/receipt"
	"receiptagent/app/service/registry"

	"github.com/gofiber/fiber/v2"
)

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type registerRequest struct {
	SpreadsheetID string `json:"spreadsheet_id" validate:"required"`
	Name          string `json:"name" validate:"required,max=200"`
}

type receiptForm struct {
	SpreadsheetID string `validate:"required"`
	WorksheetName string `validate:"max=100"`
}

type googleTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (s *Server) bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return &ValidationError{Details: []string{err.Error()}}
	}

	if err := s.validate.Struct(dst); err != nil {
		return newValidationError(err)
	}

	return nil
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(statusResponse{Status: "ok"})
}

func (s *Server) registerSpreadsheet(c *fiber.Ctx) error {
	var req registerRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	if err := receipt.ValidateSpreadsheetID(req.SpreadsheetID); err != nil {
		return err
	}

	sheet, err := s.deps.Registry.Register(c.UserContext(), currentUser(c).ID, req.SpreadsheetID, req.Name)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(sheet)
}

func (s *Server) listWorksheets(c *fiber.Ctx) error {
	spreadsheetID := c.Params("id")
	if err := receipt.ValidateSpreadsheetID(spreadsheetID); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()

	titles, err := s.deps.Schemas.Worksheets(ctx, currentUser(c).ID, spreadsheetID)
	if err != nil {
		return err
	}

	if titles == nil {
		titles = []string{}
	}

	return c.JSON(titles)
}

func (s *Server) listCanvases(c *fiber.Ctx) error {
	sheets, err := s.deps.Registry.List(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return err
	}

	if sheets == nil {
		sheets = []*registry.Spreadsheet{}
	}

	return c.JSON(sheets)
}

func (s *Server) refreshSchema(c *fiber.Ctx) error {
	job := queue.Job{
		UserID:        currentUser(c).ID,
		SpreadsheetID: c.Params("id"),
	}

	if err := receipt.ValidateSpreadsheetID(job.SpreadsheetID); err != nil {
		return err
	}

	if err := s.deps.Schemas.Check(c.UserContext(), job.UserID, job.SpreadsheetID); err != nil {
		return err
	}

	if !s.deps.Queue.Add(job) {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Schema refresh queue is full. Please try again later.")
	}

	slog.Info("Schema refresh scheduled", "user_id", job.UserID, "spreadsheet_id", job.SpreadsheetID)

	return c.Status(fiber.StatusAccepted).JSON(statusResponse{
		Status:  "accepted",
		Message: "Schema refresh scheduled.",
	})
}

func (s *Server) processReceipt(c *fiber.Ctx) error {
	form := receiptForm{
		SpreadsheetID: c.FormValue("spreadsheet_id"),
		WorksheetName: c.FormValue("worksheet_name"),
	}
	if err := s.validate.Struct(form); err != nil {
		return newValidationError(err)
	}

	header, err := c.FormFile("image")
	if err != nil {
		return &ValidationError{Details: []string{"image: field required"}}
	}

	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}

	image, err := receipt.Sanitize(data)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()

	resp, err := s.deps.Receipts.Process(ctx, receipt.Request{
		UserID:        currentUser(c).ID,
		SpreadsheetID: form.SpreadsheetID,
		WorksheetHint: form.WorksheetName,
		Image:         image,
	})
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

func (s *Server) linkGoogleAccount(c *fiber.Ctx) error {
	var req googleTokenRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	if err := s.deps.Registry.SetRefreshToken(c.UserContext(), currentUser(c).ID, req.RefreshToken); err != nil {
		return err
	}

	slog.Info("Google account linked", "user_id", currentUser(c).ID)

	return c.SendStatus(fiber.StatusNoContent)
}
