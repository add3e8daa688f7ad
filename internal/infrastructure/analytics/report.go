package analytics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	domain "github.com/stocklens/backend/internal/domain/analytics"
)

// The product visibility data comes through the upstream's asynchronous
// report facility: submit a report, poll until it is generated, download
// the delimited file and parse it into visibility records.

// CreateVisibilityReport submits a product report and returns its code.
func (c *Client) CreateVisibilityReport(ctx context.Context) (string, error) {
	body, err := json.Marshal(reportCreateRequest{Language: "DEFAULT"})
	if err != nil {
		return "", domain.NewError(domain.KindValidation, "createReport", err)
	}

	respBody, err := c.doWithRetry(ctx, "createReport", endpointReportCreate, body)
	if err != nil {
		return "", err
	}

	var resp reportCreateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", domain.NewError(domain.KindInvalidResponse, "createReport", err)
	}
	if resp.Result == nil || resp.Result.Code == "" {
		return "", domain.NewError(domain.KindInvalidResponse, "createReport",
			fmt.Errorf("response has no report code"))
	}
	return resp.Result.Code, nil
}

// WaitForReport polls the report status until it is generated, fails, or the
// configured poll timeout elapses. Polling is an expected-wait loop, not a
// failure path, so "processing" never consumes the retry budget.
func (c *Client) WaitForReport(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ReportPollTimeout)
	defer cancel()

	body, err := json.Marshal(reportInfoRequest{Code: code})
	if err != nil {
		return "", domain.NewError(domain.KindValidation, "reportInfo", err)
	}

	for {
		respBody, err := c.doWithRetry(ctx, "reportInfo", endpointReportInfo, body)
		if err != nil {
			return "", c.pollErr(ctx, code, err)
		}

		var resp reportInfoResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return "", domain.NewError(domain.KindInvalidResponse, "reportInfo", err)
		}
		if resp.Result == nil {
			return "", domain.NewError(domain.KindInvalidResponse, "reportInfo",
				fmt.Errorf("response has no result object"))
		}

		switch resp.Result.Status {
		case reportStatusSuccess:
			if resp.Result.File == "" {
				return "", domain.NewError(domain.KindInvalidResponse, "reportInfo",
					fmt.Errorf("report completed without a file URL"))
			}
			return resp.Result.File, nil
		case reportStatusFailed:
			return "", domain.NewError(domain.KindServer, "reportInfo",
				fmt.Errorf("report generation failed: %s", resp.Result.Error))
		case reportStatusProcessing, reportStatusWaiting:
			c.logger.Debug("visibility report still generating",
				zap.String("code", code),
				zap.String("status", resp.Result.Status),
			)
		default:
			return "", domain.NewError(domain.KindInvalidResponse, "reportInfo",
				fmt.Errorf("unknown report status %q", resp.Result.Status))
		}

		if err := c.sleep(ctx, c.config.ReportPollInterval); err != nil {
			return "", c.pollErr(ctx, code, err)
		}
	}
}

// pollErr classifies the error that ended the poll loop. An expired poll
// budget means the upstream never finished generating the report, so it is
// surfaced as a server failure rather than a bare context error.
func (c *Client) pollErr(ctx context.Context, code string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewError(domain.KindServer, "reportInfo",
			fmt.Errorf("report %s was not ready within %s: %w", code, c.config.ReportPollTimeout, err))
	}
	return err
}

// DownloadVisibilityReport fetches the generated file and parses it.
// The download is a plain GET against the file URL; it still goes through
// the rate limiter but is not signed.
func (c *Client) DownloadVisibilityReport(ctx context.Context, fileURL string) ([]domain.VisibilityRecord, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "downloadReport", err)
	}

	c.requestsMade.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.requestsFailed.Add(1)
		return nil, domain.NewError(domain.KindNetwork, "downloadReport", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.requestsFailed.Add(1)
		return nil, domain.NewError(classifyStatus(resp.StatusCode), "downloadReport",
			fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	records, err := parseVisibilityCSV(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidResponse, "downloadReport", err)
	}
	return records, nil
}

// FetchVisibilityReport runs the full submit-poll-download workflow.
func (c *Client) FetchVisibilityReport(ctx context.Context) ([]domain.VisibilityRecord, error) {
	code, err := c.CreateVisibilityReport(ctx)
	if err != nil {
		return nil, err
	}

	fileURL, err := c.WaitForReport(ctx, code)
	if err != nil {
		return nil, err
	}

	return c.DownloadVisibilityReport(ctx, fileURL)
}

// ---------------------------------------------------------------------------
// CSV parsing
// ---------------------------------------------------------------------------

// parseVisibilityCSV parses the semicolon-delimited product report. Column
// order varies between report versions, so columns are resolved by header.
func parseVisibilityCSV(r io.Reader) ([]domain.VisibilityRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("report file has no header: %w", err)
	}

	cols := indexColumns(header)
	offerIdx, ok := cols["offer_id"]
	if !ok {
		return nil, fmt.Errorf("report file has no offer_id column")
	}

	var records []domain.VisibilityRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed report row: %w", err)
		}
		if offerIdx >= len(row) {
			continue
		}

		rec := domain.VisibilityRecord{OfferID: strings.TrimSpace(row[offerIdx])}
		if i, ok := cols["product_id"]; ok && i < len(row) {
			rec.ProductID = strings.TrimSpace(row[i])
		}
		if i, ok := cols["name"]; ok && i < len(row) {
			rec.ProductName = strings.TrimSpace(row[i])
		}
		if i, ok := cols["status"]; ok && i < len(row) {
			rec.RawStatus = strings.TrimSpace(row[i])
		}
		records = append(records, rec)
	}
	return records, nil
}

// indexColumns maps folded header names to their positions. Known localized
// header spellings are folded onto the canonical names.
func indexColumns(header []string) map[string]int {
	aliases := map[string]string{
		"артикул":         "offer_id",
		"ozon product id": "product_id",
		"название товара": "name",
		"статус товара":   "status",
		"visibility":      "status",
		"видимость":       "status",
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if canonical, ok := aliases[key]; ok {
			key = canonical
		}
		if _, exists := cols[key]; !exists {
			cols[key] = i
		}
	}
	return cols
}
