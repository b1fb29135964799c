// Package store provides storage backends for EstateDesk.
//
// This file implements a DynamoDB-backed store using a single table with a
// composite key: user partition key plus a timestamp-ordered sort key for
// messages and a fixed sort key for the user state record.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/estatedesk/estatedesk/internal/models"
)

const (
	skPrefixMsg = "MSG#"
	skState     = "STATE#"

	// dynamoTimeout bounds every DynamoDB call issued by the store.
	dynamoTimeout = 10 * time.Second
)

// dynamoAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore persists conversation history and user state in one DynamoDB
// table.
type DynamoStore struct {
	api   dynamoAPI
	table string
}

// NewDynamoStore creates a DynamoDB store, loading AWS configuration from the
// environment. The table name is required.
func NewDynamoStore(ctx context.Context, opts ...Option) (*DynamoStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DynamoTable == "" {
		slog.Error("DynamoStore table name not set")
		return nil, fmt.Errorf("dynamodb table name not set")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		slog.Error("DynamoStore failed to load AWS config", "error", err)
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	slog.Debug("DynamoStore created", "table", cfg.DynamoTable, "region", awsCfg.Region)
	return &DynamoStore{api: dynamodb.NewFromConfig(awsCfg), table: cfg.DynamoTable}, nil
}

// NewDynamoStoreWithClient creates a DynamoDB store with an injected client.
func NewDynamoStoreWithClient(api dynamoAPI, table string) (*DynamoStore, error) {
	if api == nil {
		return nil, fmt.Errorf("dynamodb client must not be nil")
	}
	if table == "" {
		return nil, fmt.Errorf("dynamodb table name not set")
	}
	return &DynamoStore{api: api, table: table}, nil
}

// userPK returns the partition key for a user.
func userPK(userID string) string {
	return "USER#" + userID
}

// msgSK returns the sort key for a message. Zero-padding keeps lexical and
// chronological order aligned.
func msgSK(timestamp int64, role models.Role) string {
	return fmt.Sprintf("%s%013d#%s", skPrefixMsg, timestamp, role)
}

func (s *DynamoStore) SaveMessage(msg models.ConversationMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), dynamoTimeout)
	defer cancel()

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: userPK(msg.UserID)},
			"SK":        &types.AttributeValueMemberS{Value: msgSK(msg.Timestamp, msg.Role)},
			"userId":    &types.AttributeValueMemberS{Value: msg.UserID},
			"timestamp": &types.AttributeValueMemberN{Value: strconv.FormatInt(msg.Timestamp, 10)},
			"role":      &types.AttributeValueMemberS{Value: string(msg.Role)},
			"text":      &types.AttributeValueMemberS{Value: msg.Text},
		},
	})
	if err != nil {
		slog.Error("DynamoStore SaveMessage failed", "error", err, "userID", msg.UserID)
		return fmt.Errorf("failed to put message for %s: %w", msg.UserID, err)
	}
	slog.Debug("DynamoStore SaveMessage succeeded", "userID", msg.UserID, "role", msg.Role)
	return nil
}

func (s *DynamoStore) RecentMessages(userID string, maxPairs int) ([]models.ConversationMessage, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	limit := historyLimit(maxPairs)
	ctx, cancel := context.WithTimeout(context.Background(), dynamoTimeout)
	defer cancel()

	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so Limit keeps the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		slog.Error("DynamoStore RecentMessages query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query messages for %s: %w", userID, err)
	}

	msgs := make([]models.ConversationMessage, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			slog.Error("DynamoStore RecentMessages decode failed", "error", err, "userID", userID)
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	reverseMessages(msgs)
	slog.Debug("DynamoStore RecentMessages succeeded", "userID", userID, "count", len(msgs))
	return msgs, nil
}

// SaveUserState stores or fully replaces the state record for a user.
func (s *DynamoStore) SaveUserState(state models.UserState) error {
	if state.UserID == "" {
		return models.ErrEmptyUserID
	}
	ctx, cancel := context.WithTimeout(context.Background(), dynamoTimeout)
	defer cancel()

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"PK":                       &types.AttributeValueMemberS{Value: userPK(state.UserID)},
			"SK":                       &types.AttributeValueMemberS{Value: skState},
			"userId":                   &types.AttributeValueMemberS{Value: state.UserID},
			"email":                    &types.AttributeValueMemberS{Value: state.Email},
			"pendingEmailConfirmation": &types.AttributeValueMemberBOOL{Value: state.PendingEmailConfirmation},
			"updatedAt":                &types.AttributeValueMemberS{Value: state.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		slog.Error("DynamoStore SaveUserState failed", "error", err, "userID", state.UserID)
		return fmt.Errorf("failed to put state for %s: %w", state.UserID, err)
	}
	slog.Debug("DynamoStore SaveUserState succeeded", "userID", state.UserID, "state", state.SchedulingState())
	return nil
}

// GetUserState retrieves the state record for a user, or (nil, nil) when none
// exists.
func (s *DynamoStore) GetUserState(userID string) (*models.UserState, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	ctx, cancel := context.WithTimeout(context.Background(), dynamoTimeout)
	defer cancel()

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		slog.Error("DynamoStore GetUserState failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get state for %s: %w", userID, err)
	}
	if out == nil || len(out.Item) == 0 {
		slog.Debug("DynamoStore GetUserState not found", "userID", userID)
		return nil, nil
	}

	state := models.UserState{UserID: userID}
	state.Email = strAttr(out.Item, "email")
	if v, ok := out.Item["pendingEmailConfirmation"].(*types.AttributeValueMemberBOOL); ok {
		state.PendingEmailConfirmation = v.Value
	}
	if raw := strAttr(out.Item, "updatedAt"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			state.UpdatedAt = ts
		}
	}
	return &state, nil
}

func (s *DynamoStore) Close() error {
	return nil
}

// itemToMessage converts a DynamoDB attribute map to a ConversationMessage.
func itemToMessage(item map[string]types.AttributeValue) (models.ConversationMessage, error) {
	var msg models.ConversationMessage
	msg.UserID = strAttr(item, "userId")
	msg.Role = models.Role(strAttr(item, "role"))
	msg.Text = strAttr(item, "text")
	if v, ok := item["timestamp"].(*types.AttributeValueMemberN); ok {
		ts, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return msg, fmt.Errorf("invalid timestamp attribute: %w", err)
		}
		msg.Timestamp = ts
	}
	if msg.UserID == "" || msg.Text == "" {
		return msg, fmt.Errorf("incomplete message item")
	}
	return msg, nil
}

// strAttr extracts a string attribute, returning "" when absent.
func strAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
