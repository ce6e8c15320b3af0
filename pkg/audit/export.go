package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExportFormat is the encoding of an export
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// MaxExportRecords caps the number of records in one export
const MaxExportRecords = 10000

// ParseExportFormat parses a format name, defaulting to JSON
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return ExportFormatJSON, nil
	case ExportFormatJSON, ExportFormatCSV, ExportFormatNDJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatCSV:
		return "text/csv"
	case ExportFormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// Filename returns the download filename of the format
func (f ExportFormat) Filename() string {
	return "audit-logs." + string(f)
}

// Export collects every record matching the filter, newest first, up to
// MaxExportRecords. Filter pagination is ignored.
func (s *Service) Export(ctx context.Context, f Filter) (records []*Record, err error) {
	started := time.Now()
	defer func() { s.metrics.observeQuery("export", started, err) }()

	c := f.Criteria()
	records = []*Record{}
	for len(records) < MaxExportRecords {
		limit := MaxPageLimit
		if remaining := MaxExportRecords - len(records); remaining < limit {
			limit = remaining
		}

		page, err := s.store.Select(ctx, c, Page{Limit: limit, Offset: len(records)})
		if err != nil {
			return nil, storageError("select export", err)
		}
		records = append(records, page...)
		if len(page) < limit {
			break
		}
	}
	return records, nil
}

// Encode renders records in the given format
func Encode(records []*Record, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatCSV:
		return exportCSV(records)
	case ExportFormatNDJSON:
		return exportNDJSON(records)
	default:
		return exportJSON(records)
	}
}

// exportJSON exports records as a JSON array
func exportJSON(records []*Record) ([]byte, error) {
	return json.MarshalIndent(records, "", "  ")
}

// exportNDJSON exports records as newline-delimited JSON
func exportNDJSON(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", rec.ID, err)
		}
	}

	return buf.Bytes(), nil
}

var csvHeader = []string{
	"ID",
	"Timestamp",
	"UserID",
	"UserEmail",
	"UserName",
	"Action",
	"Entity",
	"EntityID",
	"Severity",
	"Description",
	"ChangedFields",
	"IPAddress",
	"UserAgent",
	"Endpoint",
	"HTTPMethod",
}

// exportCSV exports records as CSV. Snapshots are omitted; changed fields
// are listed by name.
func exportCSV(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		var rc RequestContext
		if rec.RequestContext != nil {
			rc = *rec.RequestContext
		}

		row := []string{
			strconv.FormatInt(rec.ID, 10),
			time.Unix(rec.OccurredAt, 0).UTC().Format(time.RFC3339),
			rec.ActorID,
			rec.ActorEmail,
			rec.ActorName,
			string(rec.Action),
			string(rec.EntityType),
			rec.EntityID,
			string(rec.Severity),
			rec.Description,
			strings.Join(rec.Changes.Fields(), ";"),
			rc.IPAddress,
			rc.UserAgent,
			rc.Endpoint,
			rc.HTTPMethod,
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
