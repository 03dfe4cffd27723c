package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/fieldops-backend/pkg/config"
	"github.com/angelmondragon/fieldops-backend/pkg/logger"
)

const (
	metadataCheckTimeout = 10 * time.Second
	// streaming inserts are capped per request
	maxRowsPerInsert = 500
)

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// FieldEventsSchema is the row layout written by the field events consumer.
// Rows are partitioned by day of occurred_at and clustered by company.
func FieldEventsSchema() bigquery.Schema {
	return bigquery.Schema{
		{Name: "event_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "event_type", Type: bigquery.StringFieldType, Required: true},
		{Name: "occurred_at", Type: bigquery.TimestampFieldType, Required: true},
		{Name: "company_id", Type: bigquery.StringFieldType},
		{Name: "representative_id", Type: bigquery.StringFieldType},
		{Name: "session_id", Type: bigquery.StringFieldType},
		{Name: "visit_id", Type: bigquery.StringFieldType},
		{Name: "outcome", Type: bigquery.StringFieldType},
		{Name: "payload", Type: bigquery.JSONFieldType},
	}
}

func fieldEventsMetadata() *bigquery.TableMetadata {
	return &bigquery.TableMetadata{
		Description: "Field visit and market session events relayed from the outbox.",
		Schema:      FieldEventsSchema(),
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "occurred_at",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"company_id", "event_type"}},
	}
}

// Client writes field analytics rows into one dataset.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	table   string
	create  bool
}

// NewClient connects to BigQuery and checks the dataset and field events
// table. With cfg.CreateTable a missing table is created from FieldEventsSchema.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	table := strings.TrimSpace(cfg.FieldEventsTable)
	if table == "" {
		return nil, errTableNameRequired
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	client := &Client{
		client:  bqClient,
		dataset: bqClient.Dataset(datasetID),
		table:   table,
		create:  cfg.CreateTable,
	}
	if err := client.ensureTable(ctx, logg); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": datasetID,
			"table":   table,
		}), "bigquery client initialized")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// FieldEventsTable returns the table field events are streamed into.
func (c *Client) FieldEventsTable() string {
	if c == nil {
		return ""
	}
	return c.table
}

func (c *Client) ensureTable(ctx context.Context, logg *logger.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}

	handle := c.dataset.Table(c.table)
	_, err := handle.Metadata(ctx)
	switch {
	case err == nil:
		return nil
	case !isNotFound(err):
		return fmt.Errorf("checking table %q: %w", c.table, err)
	case !c.create:
		return fmt.Errorf("table %q does not exist", c.table)
	}

	if err := handle.Create(ctx, fieldEventsMetadata()); err != nil && !isConflict(err) {
		return fmt.Errorf("creating table %q: %w", c.table, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "table", c.table), "bigquery field events table created")
	}
	return nil
}

// Ping verifies the dataset and table are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()
	if _, err := c.dataset.Table(c.table).Metadata(ctx); err != nil {
		return fmt.Errorf("checking table %q: %w", c.table, err)
	}
	return nil
}

// InsertRows streams rows into table, splitting large slices into several
// requests. Per-row failures are reported with their count.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}

	inserter := c.dataset.Table(table).Inserter()
	for _, chunk := range chunkRows(rows, maxRowsPerInsert) {
		if err := inserter.Put(ctx, chunk); err != nil {
			var multi bigquery.PutMultiError
			if errors.As(err, &multi) {
				return fmt.Errorf("%d of %d rows rejected: %w", len(multi), len(chunk), err)
			}
			return err
		}
	}
	return nil
}

func chunkRows(rows []any, size int) [][]any {
	var chunks [][]any
	for len(rows) > size {
		chunks = append(chunks, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		chunks = append(chunks, rows)
	}
	return chunks
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	return apiStatus(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return apiStatus(err) == http.StatusConflict
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code
	}
	return 0
}
