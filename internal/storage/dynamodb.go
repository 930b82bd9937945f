package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/rs/zerolog"
)

// batchWriteLimit is the DynamoDB BatchWriteItem maximum
const batchWriteLimit = 25

const maxBatchRetries = 5

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg Config, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == ModeDynamoLocal {
		// LoadDefaultConfig probes the EC2 IMDS endpoint, which hangs when
		// static credentials are intended
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}

	if cfg.Mode == ModeDynamoLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) SaveQueueMetrics(ctx context.Context, rows []types.QueueMetricRow) error {
	requests := make([]dbtypes.WriteRequest, 0, len(rows))
	for _, row := range rows {
		item, err := attributevalue.MarshalMap(row)
		if err != nil {
			return fmt.Errorf("failed to marshal queue metric row: %w", err)
		}
		requests = append(requests, dbtypes.WriteRequest{PutRequest: &dbtypes.PutRequest{Item: item}})
	}

	if err := s.batchWrite(ctx, s.config.MetricsTable, requests); err != nil {
		return fmt.Errorf("failed to save queue metrics: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListQueueMetrics(ctx context.Context, period string) ([]types.QueueMetricRow, error) {
	var items []map[string]dbtypes.AttributeValue

	if period == "" {
		all, err := s.scanAll(ctx, s.config.MetricsTable)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue metrics: %w", err)
		}
		items = all
	} else {
		keyCond := expression.Key("Period").Equal(expression.Value(period))
		expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build expression: %w", err)
		}

		paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:                 aws.String(s.config.MetricsTable),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to query queue metrics: %w", err)
			}
			items = append(items, page.Items...)
		}
	}

	var rows []types.QueueMetricRow
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue metrics: %w", err)
	}
	return rows, nil
}

// BackupAndTruncate copies every metrics item into the backup table before
// deleting it. Nothing is deleted unless the backup write succeeded.
func (s *DynamoDBStore) BackupAndTruncate(ctx context.Context) (string, int, error) {
	items, err := s.scanAll(ctx, s.config.MetricsTable)
	if err != nil {
		return "", 0, fmt.Errorf("failed to scan queue metrics: %w", err)
	}

	var rows []types.QueueMetricRow
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return "", 0, fmt.Errorf("failed to unmarshal queue metrics: %w", err)
	}

	now := s.now().UTC()
	backupID := NewBackupID(now)

	puts := make([]dbtypes.WriteRequest, 0, len(rows))
	deletes := make([]dbtypes.WriteRequest, 0, len(rows))
	for _, row := range rows {
		item, err := attributevalue.MarshalMap(types.BackupRow{BackupID: backupID, BackedUpAt: now, QueueMetricRow: row})
		if err != nil {
			return "", 0, fmt.Errorf("failed to marshal backup row: %w", err)
		}
		puts = append(puts, dbtypes.WriteRequest{PutRequest: &dbtypes.PutRequest{Item: item}})
		deletes = append(deletes, dbtypes.WriteRequest{DeleteRequest: &dbtypes.DeleteRequest{
			Key: map[string]dbtypes.AttributeValue{
				"Period": &dbtypes.AttributeValueMemberS{Value: row.Period},
				"RowID":  &dbtypes.AttributeValueMemberS{Value: row.RowID},
			},
		}})
	}

	if err := s.batchWrite(ctx, s.config.BackupTable, puts); err != nil {
		return "", 0, fmt.Errorf("failed to write backup %s: %w", backupID, err)
	}
	if err := s.batchWrite(ctx, s.config.MetricsTable, deletes); err != nil {
		return "", 0, fmt.Errorf("failed to truncate %s: %w", s.config.MetricsTable, err)
	}

	s.logger.Info().
		Str("backup_id", backupID).
		Int("rows", len(rows)).
		Msg("queue metrics backed up and truncated")
	return backupID, len(rows), nil
}

func (s *DynamoDBStore) SaveAuditEntry(ctx context.Context, entry types.AuditEntry) error {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.AuditTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListAuditEntries(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	items, err := s.scanAll(ctx, s.config.AuditTable)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	var entries []types.AuditEntry
	if err := attributevalue.UnmarshalListOfMaps(items, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit entries: %w", err)
	}

	sortAuditEntries(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *DynamoDBStore) scanAll(ctx context.Context, tableName string) ([]map[string]dbtypes.AttributeValue, error) {
	var items []map[string]dbtypes.AttributeValue

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(tableName),
		Limit:     aws.Int32(500),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// batchWrite sends requests in groups of 25, resubmitting unprocessed items
func (s *DynamoDBStore) batchWrite(ctx context.Context, tableName string, requests []dbtypes.WriteRequest) error {
	for i := 0; i < len(requests); i += batchWriteLimit {
		end := min(i+batchWriteLimit, len(requests))
		pending := map[string][]dbtypes.WriteRequest{tableName: requests[i:end]}

		for attempt := 0; len(pending[tableName]) > 0; attempt++ {
			if attempt == maxBatchRetries {
				return fmt.Errorf("%d items unprocessed after %d attempts", len(pending[tableName]), attempt)
			}
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt*50) * time.Millisecond):
				}
			}

			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems
			if pending == nil {
				break
			}
		}
	}
	return nil
}
