// Package sheets persists run results as rows of a Google Sheet.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/topics"
)

const (
	headerRange = "A1:M1"
	dataRange   = "A:M"
	fixedCols   = 4
)

// Headers is the fixed first row of the sheet.
var Headers = []string{
	"Timestamp",
	"Topic",
	"Drama Score",
	"Topics Considered",
	"Script 1 - Hook",
	"Script 1 - Premise",
	"Script 1 - Punchline",
	"Script 2 - Hook",
	"Script 2 - Premise",
	"Script 2 - Punchline",
	"Script 3 - Hook",
	"Script 3 - Premise",
	"Script 3 - Punchline",
}

type Sink struct {
	svc           *gsheets.Service
	spreadsheetID string
	log           *slog.Logger

	mu        sync.Mutex
	headersOK bool
}

// New connects to the spreadsheet. Callers pass credentials as client options,
// typically option.WithCredentialsFile.
func New(ctx context.Context, spreadsheetID string, log *slog.Logger, opts ...option.ClientOption) (*Sink, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is empty")
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Sink{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		log:           logger.OrDefault(log).With("component", "sheets"),
	}, nil
}

func (s *Sink) Name() string { return "sheets" }

// Append writes one row for the entry, adding the header row first if row 1 is empty.
func (s *Sink) Append(ctx context.Context, e topics.Entry) error {
	s.ensureHeaders(ctx)

	vr := &gsheets.ValueRange{Values: [][]interface{}{BuildRow(e)}}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, "A1", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	s.log.Info("row appended", "topic", e.Topic)
	return nil
}

// ensureHeaders is best-effort; a failure is logged and retried on the next append.
func (s *Sink) ensureHeaders(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headersOK {
		return
	}

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		s.log.Warn("could not read header row", "error", err)
		return
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 && fmt.Sprint(resp.Values[0][0]) != "" {
		s.headersOK = true
		return
	}

	row := make([]interface{}, len(Headers))
	for i, h := range Headers {
		row[i] = h
	}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, headerRange, &gsheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		s.log.Warn("could not write header row", "error", err)
		return
	}
	s.log.Info("header row added")
	s.headersOK = true
}

// Recent returns up to n entries, newest first.
func (s *Sink) Recent(ctx context.Context, n int) ([]topics.Entry, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, dataRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return ParseRows(resp.Values, n), nil
}

// BuildRow lays an entry out across the 13 columns, padding missing scripts with blanks.
func BuildRow(e topics.Entry) []interface{} {
	row := make([]interface{}, 0, len(Headers))
	row = append(row, e.Timestamp.Format(time.RFC3339), e.Topic, e.Score, e.RankedSummary)
	for i := 0; i < topics.ScriptCount; i++ {
		if i < len(e.Scripts) {
			sc := e.Scripts[i]
			row = append(row, sc.Hook, sc.Premise, sc.Punchline)
		} else {
			row = append(row, "", "", "")
		}
	}
	return row
}

// ParseRows turns sheet values (header row included) into the last n entries, newest first.
func ParseRows(values [][]interface{}, n int) []topics.Entry {
	if len(values) <= 1 || n <= 0 {
		return nil
	}
	data := values[1:]
	if len(data) > n {
		data = data[len(data)-n:]
	}

	out := make([]topics.Entry, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		row := data[i]
		if len(row) < 3 {
			continue
		}
		e := topics.Entry{
			Topic:         cell(row, 1),
			Score:         cell(row, 2),
			RankedSummary: cell(row, 3),
		}
		if ts, err := time.Parse(time.RFC3339, cell(row, 0)); err == nil {
			e.Timestamp = ts
		}
		for j := 0; j < topics.ScriptCount; j++ {
			base := fixedCols + j*3
			sc := topics.ScriptIdea{Hook: cell(row, base), Premise: cell(row, base+1), Punchline: cell(row, base+2)}
			if sc != (topics.ScriptIdea{}) {
				e.Scripts = append(e.Scripts, sc)
			}
		}
		out = append(out, e)
	}
	return out
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return fmt.Sprint(row[i])
}
