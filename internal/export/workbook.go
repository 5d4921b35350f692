package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hotelhub/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	SheetRooms    = "Rooms"
	SheetReviews  = "Reviews"
	SheetBookings = "Bookings"
)

// Source is the read side of the store needed for an export.
type Source interface {
	ListRooms(ctx context.Context) ([]*models.Room, error)
	ListBookings(ctx context.Context) ([]*models.Booking, error)
}

var (
	roomHeader    = []string{"Room ID", "Name", "Price", "Available", "Rating", "Reviews"}
	reviewHeader  = []string{"Room ID", "User Email", "Rating", "Timestamp", "Comment"}
	bookingHeader = []string{"Booking ID", "Room ID", "User Email", "Booking Date", "Rating"}
)

// WriteWorkbook выгружает комнаты, отзывы и бронирования в xlsx и
// возвращает путь к файлу.
func WriteWorkbook(ctx context.Context, src Source, dir string, now time.Time, logger *zerolog.Logger) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	rooms, err := src.ListRooms(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting rooms: %w", err)
	}
	bookings, err := src.ListBookings(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting bookings: %w", err)
	}

	f, err := BuildWorkbook(rooms, bookings)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(dir, fmt.Sprintf("hotelhub_%s.xlsx", now.Format("2006-01-02_150405")))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	if logger != nil {
		logger.Info().Str("file_path", filePath).Int("rooms", len(rooms)).Int("bookings", len(bookings)).Msg("Excel file created")
	}
	return filePath, nil
}

// BuildWorkbook renders the three sheets in memory.
func BuildWorkbook(rooms []*models.Room, bookings []*models.Booking) (*excelize.File, error) {
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating style: %w", err)
	}

	var roomRows, reviewRows [][]interface{}
	for _, r := range rooms {
		roomRows = append(roomRows, []interface{}{r.ID, extraString(r.Extra, "name"), r.Price, r.Availability, r.Rating, len(r.Reviews)})
		for _, rv := range r.Reviews {
			reviewRows = append(reviewRows, []interface{}{r.ID, rv.UserEmail, rv.Rating, rv.Timestamp, extraString(rv.Extra, "comment")})
		}
	}

	bookingRows := make([][]interface{}, 0, len(bookings))
	for _, b := range bookings {
		var rating interface{} = ""
		if b.Rating != nil {
			rating = *b.Rating
		}
		bookingRows = append(bookingRows, []interface{}{b.ID, b.RoomID, b.UserEmail, b.BookingDate, rating})
	}

	sheets := []struct {
		name   string
		header []string
		rows   [][]interface{}
	}{
		{SheetRooms, roomHeader, roomRows},
		{SheetReviews, reviewHeader, reviewRows},
		{SheetBookings, bookingHeader, bookingRows},
	}
	for _, s := range sheets {
		if err := writeSheet(f, s.name, s.header, s.rows, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(SheetRooms); err == nil {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

func writeSheet(f *excelize.File, name string, header []string, rows [][]interface{}, style int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("error creating sheet %s: %w", name, err)
	}

	for col, title := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(name, cell, title)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	_ = f.SetCellStyle(name, "A1", last, style)

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("error writing %s row %d: %w", name, i+2, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	_ = f.SetColWidth(name, "A", lastCol, 22)
	return nil
}

func extraString(extra map[string]any, key string) string {
	v, ok := extra[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
