package dynamo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-otp-auth/internal/config"
)

// TableAdmin is the subset of the DynamoDB client Bootstrap needs.
type TableAdmin interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// Bootstrap creates the accounts table if it doesn't already exist and
// enables TTL on purge_at so abandoned pending accounts are dropped.
// Safe to call on every startup.
func Bootstrap(ctx context.Context, client TableAdmin, tables config.DynamoTables) error {
	err := createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Accounts),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(fieldEmail), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(fieldEmail), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		return err
	}
	enableTTL(ctx, client, tables.Accounts, fieldPurgeAt)
	return nil
}

func createTable(ctx context.Context, client TableAdmin, input *dynamodb.CreateTableInput) error {
	_, err := client.CreateTable(ctx, input)
	if err == nil {
		slog.InfoContext(ctx, "created table", "table", *input.TableName)
		return nil
	}
	// ResourceInUseException means the table already exists.
	var riue *types.ResourceInUseException
	if errors.As(err, &riue) {
		return nil
	}
	return err
}

func enableTTL(ctx context.Context, client TableAdmin, tableName, ttlAttr string) {
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttr),
		},
	})
	if err != nil {
		// already enabled is reported as a ValidationException
		slog.WarnContext(ctx, "could not enable TTL", "table", tableName, "err", err)
	}
}
