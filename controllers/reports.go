package controllers

import (
	"fmt"
	"time"

	"tutorhub_go/database"
	"tutorhub_go/models"
	"tutorhub_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

// ReportsController produces operator exports. Spreadsheets are the
// lingua franca of the office staff, so the lessons report goes out as
// xlsx rather than CSV.
type ReportsController struct{}

// ExportLessons writes an xlsx of lessons in the requested date range
// (default: the last 30 days). Admin only; wired behind RequireOwnerOrAdmin.
func (rc *ReportsController) ExportLessons(c *fiber.Ctx) error {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid from date, expected YYYY-MM-DD"})
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid to date, expected YYYY-MM-DD"})
		}
		to = parsed.AddDate(0, 0, 1) // inclusive end day
	}

	var lessons []models.Lesson
	if err := database.DB.
		Preload("Learner").Preload("Teacher").Preload("Subject").
		Where("scheduled_start >= ? AND scheduled_start < ?", from, to).
		Order("scheduled_start ASC").
		Find(&lessons).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch lessons"})
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Lessons"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"ID", "Scheduled Start", "Duration (min)", "Learner", "Teacher", "Subject", "Status", "Confirmation", "Recording"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, l := range lessons {
		recording := services.ResolveArtifacts(now, &l).RecordingState
		if l.Status != models.LessonStatusCompleted {
			recording = ""
		}
		values := []interface{}{
			l.ID,
			l.ScheduledStart.Format("2006-01-02 15:04"),
			l.DurationMinutes,
			fmt.Sprintf("%s %s", l.Learner.FirstName, l.Learner.LastName),
			fmt.Sprintf("%s %s", l.Teacher.FirstName, l.Teacher.LastName),
			l.Subject.Name,
			l.Status,
			l.ConfirmationStatus,
			recording,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	f.SetColWidth(sheet, "B", "B", 18)
	f.SetColWidth(sheet, "D", "F", 24)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build report"})
	}

	filename := fmt.Sprintf("lessons_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(buf.Bytes())
}
