package authserver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB index names. Both are sparse: roots carry no parent_id and
// logins without PIN login carry no pin2_id.
const (
	ParentIndex = "parent_id-index"
	Pin2Index   = "pin2_id-index"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps records in a DynamoDB table keyed by login_id.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore creates a store over an existing table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// GetLogin returns the record for loginID.
func (s *DynamoStore) GetLogin(ctx context.Context, loginID string) (*Record, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"login_id": &types.AttributeValueMemberS{Value: loginID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get login: %w", err)
	}
	if result.Item == nil {
		return nil, ErrRecordNotFound
	}
	return recordFromItem(result.Item)
}

// GetLoginByPin2ID returns the record whose PIN login handle is pin2ID.
func (s *DynamoStore) GetLoginByPin2ID(ctx context.Context, pin2ID []byte) (*Record, error) {
	if len(pin2ID) == 0 {
		return nil, ErrRecordNotFound
	}
	records, err := s.query(ctx, Pin2Index, "pin2_id", hex.EncodeToString(pin2ID))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}
	if len(records) > 1 {
		log.Warn().Int("matches", len(records)).Msg("Duplicate pin2Id in login table")
	}
	return records[0], nil
}

// ListChildren returns the direct children of parentID, oldest first.
func (s *DynamoStore) ListChildren(ctx context.Context, parentID string) ([]*Record, error) {
	records, err := s.query(ctx, ParentIndex, "parent_id", parentID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// PutLogin inserts or replaces rec.
func (s *DynamoStore) PutLogin(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	item := map[string]types.AttributeValue{
		"login_id":   &types.AttributeValueMemberS{Value: rec.LoginID},
		"record":     &types.AttributeValueMemberB{Value: data},
		"updated_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.UpdatedAt.Unix(), 10)},
	}
	if rec.ParentID != "" {
		item["parent_id"] = &types.AttributeValueMemberS{Value: rec.ParentID}
	}
	if handle := rec.pin2Handle(); handle != "" {
		item["pin2_id"] = &types.AttributeValueMemberS{Value: handle}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to store login: %w", err)
	}
	return nil
}

// Close is a no-op; the DynamoDB client holds no connection.
func (s *DynamoStore) Close() error {
	return nil
}

func (s *DynamoStore) query(ctx context.Context, index, attr, value string) ([]*Record, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("#k = :v"),
		ExpressionAttributeNames: map[string]string{
			"#k": attr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
	}

	var records []*Record
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", index, err)
		}
		for _, item := range result.Items {
			rec, err := recordFromItem(item)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		if len(result.LastEvaluatedKey) == 0 {
			return records, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func recordFromItem(item map[string]types.AttributeValue) (*Record, error) {
	blob, ok := item["record"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("login item has no record attribute")
	}
	var rec Record
	if err := json.Unmarshal(blob.Value, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}
