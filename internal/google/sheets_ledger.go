package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"hotelhub/internal/config"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsLedger appends booking and review events to one sheet of a
// spreadsheet.
type SheetsLedger struct {
	service       *sheets.Service
	spreadsheetID string
	sheet         string
}

func NewSheetsLedger(ctx context.Context, cfg config.GoogleConfig) (*SheetsLedger, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return NewSheetsLedgerWithService(srv, cfg.LedgerSpreadsheetID, cfg.LedgerSheet), nil
}

func NewSheetsLedgerWithService(srv *sheets.Service, spreadsheetID, sheet string) *SheetsLedger {
	if sheet == "" {
		sheet = "Ledger"
	}
	return &SheetsLedger{service: srv, spreadsheetID: spreadsheetID, sheet: sheet}
}

// TestConnection проверяет доступ к таблице
func (s *SheetsLedger) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// Prepare checks access to the spreadsheet and writes the header row if the
// sheet is still empty.
func (s *SheetsLedger) Prepare(ctx context.Context, header []interface{}) error {
	if err := s.TestConnection(ctx); err != nil {
		return err
	}
	return s.EnsureHeader(ctx, header)
}

// EnsureHeader writes header into the first row when the sheet is empty.
func (s *SheetsLedger) EnsureHeader(ctx context.Context, header []interface{}) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheet+"!1:1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{header}}
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.sheet+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// AppendRow adds one row below the last filled one.
func (s *SheetsLedger) AppendRow(ctx context.Context, values []interface{}) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{values}}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheet+"!A:A", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of the credentials file; the
// spreadsheet must be shared with it.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}
