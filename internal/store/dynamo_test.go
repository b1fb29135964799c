package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/estatedesk/estatedesk/internal/models"
)

// fakeDynamoAPI is an in-memory stand-in for the DynamoDB client. Items are
// keyed by PK+SK and queries honor Limit and ScanIndexForward.
type fakeDynamoAPI struct {
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamoAPI() *fakeDynamoAPI {
	return &fakeDynamoAPI{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	pk := item["PK"].(*types.AttributeValueMemberS).Value
	sk := item["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamoAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item, ok := f.items[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamoAPI) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	prefix := in.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS).Value

	var keys []string
	for k := range f.items {
		parts := strings.SplitN(k, "|", 2)
		if parts[0] == pk && strings.HasPrefix(parts[1], prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	if in.Limit != nil && len(keys) > int(*in.Limit) {
		keys = keys[:int(*in.Limit)]
	}

	out := &dynamodb.QueryOutput{}
	for _, k := range keys {
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

func TestDynamoStoreRecentMessagesWindow(t *testing.T) {
	api := newFakeDynamoAPI()
	s, err := NewDynamoStoreWithClient(api, "estatedesk-conversations")
	if err != nil {
		t.Fatalf("NewDynamoStoreWithClient failed: %v", err)
	}

	base := time.Now().UnixMilli()
	for i := 0; i < 25; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msg := models.ConversationMessage{
			UserID:    "+971501234567",
			Timestamp: base + int64(i),
			Role:      role,
			Text:      fmt.Sprintf("message %d", i),
		}
		if err := s.SaveMessage(msg); err != nil {
			t.Fatalf("SaveMessage(%d) failed: %v", i, err)
		}
	}

	msgs, err := s.RecentMessages("+971501234567", 10)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("Expected 20 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "message 5" || msgs[19].Text != "message 24" {
		t.Errorf("Unexpected window: first=%q last=%q", msgs[0].Text, msgs[19].Text)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp < msgs[i-1].Timestamp {
			t.Errorf("Messages out of chronological order at index %d", i)
		}
	}
}

func TestDynamoStoreUserStateRoundTrip(t *testing.T) {
	api := newFakeDynamoAPI()
	s, err := NewDynamoStoreWithClient(api, "estatedesk-conversations")
	if err != nil {
		t.Fatalf("NewDynamoStoreWithClient failed: %v", err)
	}

	state, err := s.GetUserState("+971501234567")
	if err != nil {
		t.Fatalf("GetUserState failed: %v", err)
	}
	if state != nil {
		t.Fatalf("Expected nil state for unknown user, got %+v", state)
	}

	saved := models.UserState{
		UserID:    "+971501234567",
		Email:     "client@example.com",
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.SaveUserState(saved); err != nil {
		t.Fatalf("SaveUserState failed: %v", err)
	}

	state, err = s.GetUserState("+971501234567")
	if err != nil {
		t.Fatalf("GetUserState failed: %v", err)
	}
	if state == nil || state.Email != "client@example.com" || state.PendingEmailConfirmation {
		t.Fatalf("Unexpected state after round trip: %+v", state)
	}
}

func TestNewDynamoStoreWithClientValidation(t *testing.T) {
	if _, err := NewDynamoStoreWithClient(nil, "table"); err == nil {
		t.Error("Expected error for nil client")
	}
	if _, err := NewDynamoStoreWithClient(newFakeDynamoAPI(), ""); err == nil {
		t.Error("Expected error for empty table name")
	}
}
