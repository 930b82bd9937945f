package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

// keySchema names the partition and sort key of one table; both are strings
type keySchema struct {
	table     string
	partition string
	sort      string
}

// keySchemas lists the metrics, backup and audit tables. Metrics rows are
// partitioned by period, backups by backup ID and audit entries by UTC day.
func keySchemas(cfg Config) []keySchema {
	return []keySchema{
		{table: cfg.MetricsTable, partition: "Period", sort: "RowID"},
		{table: cfg.BackupTable, partition: "BackupID", sort: "RowID"},
		{table: cfg.AuditTable, partition: "Day", sort: "EntryID"},
	}
}

const tableReadyTimeout = 30 * time.Second

// CreateTablesIfNotExist creates the callreport tables on a local DynamoDB
// endpoint and waits until each one is active
func CreateTablesIfNotExist(ctx context.Context, client *dynamodb.Client, cfg Config, logger zerolog.Logger) error {
	waiter := dynamodb.NewTableExistsWaiter(client)

	for _, ks := range keySchemas(cfg) {
		log := logger.With().Str("table", ks.table).Logger()

		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(ks.table)})
		if err == nil {
			log.Debug().Msg("table present")
			continue
		}
		var notFound *dbtypes.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("describe table %s: %w", ks.table, err)
		}

		_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(ks.table),
			KeySchema: []dbtypes.KeySchemaElement{
				{AttributeName: aws.String(ks.partition), KeyType: dbtypes.KeyTypeHash},
				{AttributeName: aws.String(ks.sort), KeyType: dbtypes.KeyTypeRange},
			},
			AttributeDefinitions: []dbtypes.AttributeDefinition{
				{AttributeName: aws.String(ks.partition), AttributeType: dbtypes.ScalarAttributeTypeS},
				{AttributeName: aws.String(ks.sort), AttributeType: dbtypes.ScalarAttributeTypeS},
			},
			BillingMode: dbtypes.BillingModePayPerRequest,
		})
		if err != nil {
			return fmt.Errorf("create table %s: %w", ks.table, err)
		}

		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(ks.table)}, tableReadyTimeout); err != nil {
			return fmt.Errorf("wait for table %s: %w", ks.table, err)
		}
		log.Info().Str("partition_key", ks.partition).Str("sort_key", ks.sort).Msg("table created")
	}

	return nil
}
