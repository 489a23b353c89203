package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"story_feedback_collector/apperror"
	"story_feedback_collector/logging"
)

const (
	DefaultRange = "Sheet1!A:Z"

	valueInputOption = "USER_ENTERED"
	insertDataOption = "INSERT_ROWS"

	saveFailedMessage = "Failed to save feedback to Google Sheets"
)

// Config addresses the target spreadsheet.
type Config struct {
	SpreadsheetID string
	Range         string
	// VerifyAccess fetches spreadsheet metadata before every append.
	VerifyAccess bool
	// ServiceAccountEmail is named in permission errors.
	ServiceAccountEmail string
}

// Client appends rows to one spreadsheet. It is safe for concurrent use.
type Client struct {
	cfg    Config
	svc    *sheetsapi.Service
	logger *logging.Logger
}

// New authenticates as the service account described by credentialsJSON.
// The returned client is meant to live for the whole process.
func New(ctx context.Context, cfg Config, credentialsJSON []byte, logger *logging.Logger) (*Client, error) {
	jwtCfg, err := google.JWTConfigFromJSON(credentialsJSON, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(context.Background())))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(cfg, svc, logger)
}

func NewWithService(cfg Config, svc *sheetsapi.Service, logger *logging.Logger) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	if svc == nil {
		return nil, errors.New("sheets service is required")
	}
	if cfg.Range == "" {
		cfg.Range = DefaultRange
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{cfg: cfg, svc: svc, logger: logger}, nil
}

// Append adds row below the existing data of the configured range. Values
// are parsed as if typed by a user.
func (c *Client) Append(ctx context.Context, row []string) error {
	if c.cfg.VerifyAccess {
		if err := c.verifyAccess(ctx); err != nil {
			return err
		}
	}

	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}

	resp, err := c.svc.Spreadsheets.Values.Append(c.cfg.SpreadsheetID, c.cfg.Range, &sheetsapi.ValueRange{
		Values: [][]interface{}{values},
	}).
		ValueInputOption(valueInputOption).
		InsertDataOption(insertDataOption).
		Context(ctx).
		Do()
	if err != nil {
		return c.classify(err)
	}

	fields := []zap.Field{zap.Int("cells", len(row))}
	if resp.Updates != nil {
		fields = append(fields, zap.String("updated_range", resp.Updates.UpdatedRange))
	}
	c.logger.Info(ctx, "row appended", fields...)
	return nil
}

func (c *Client) verifyAccess(ctx context.Context) error {
	meta, err := c.svc.Spreadsheets.Get(c.cfg.SpreadsheetID).
		Fields("spreadsheetId,properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return c.classify(err)
	}
	title := ""
	if meta.Properties != nil {
		title = meta.Properties.Title
	}
	c.logger.Debug(ctx, "spreadsheet access verified", zap.String("title", title))
	return nil
}

func (c *Client) classify(err error) error {
	if isPermissionDenied(err) {
		return apperror.AuthorizationError(c.permissionMessage(), err)
	}
	return apperror.UpstreamError(saveFailedMessage, err)
}

func (c *Client) permissionMessage() string {
	email := c.cfg.ServiceAccountEmail
	if email == "" {
		email = "the configured service account"
	}
	return fmt.Sprintf("Permission denied. Please share the Google Sheet with %s and give it Editor access.", email)
}

func isPermissionDenied(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusForbidden {
		return true
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "permission_denied") ||
		strings.Contains(text, "does not have permission") ||
		strings.Contains(text, "permission denied")
}
