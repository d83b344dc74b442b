package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/luckygas/gasdesk/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore persists conversations in a DynamoDB table keyed by
// conversationKey. The turn compare-and-set rides on a conditional put, and
// the table's TTL attribute reaps long-idle items; loads also check idle time
// so expiry does not depend on the reaper having run.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logging.Logger
	nowFunc   func() time.Time
}

type DynamoOption func(*DynamoStore)

// WithDynamoTTL overrides the idle expiry window.
func WithDynamoTTL(ttl time.Duration) DynamoOption {
	return func(s *DynamoStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithDynamoClock overrides the clock, for expiry tests.
func WithDynamoClock(now func() time.Time) DynamoOption {
	return func(s *DynamoStore) {
		if now != nil {
			s.nowFunc = now
		}
	}
}

func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger, opts ...DynamoOption) *DynamoStore {
	if client == nil {
		panic("state: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("state: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &DynamoStore{
		client:    client,
		tableName: tableName,
		ttl:       DefaultTTL,
		logger:    logger,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DynamoStore) Load(ctx context.Context, key string) (*Conversation, error) {
	if key == "" {
		return nil, errors.New("state: conversation key required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"conversationKey": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("state: failed to fetch conversation: %w", err)
	}
	if out.Item == nil {
		return fresh(key, 0), nil
	}

	var conv Conversation
	if err := attributevalue.UnmarshalMap(out.Item, &conv); err != nil {
		return nil, fmt.Errorf("state: failed to decode conversation: %w", err)
	}
	if conv.expired(s.nowFunc(), s.ttl) {
		s.logger.Debug("conversation expired, starting fresh", "key", key)
		return fresh(key, conv.Turn), nil
	}
	return &conv, nil
}

// Save persists conv with the turn counter advanced. The conditional put
// only succeeds when no item exists yet or the stored turn still matches the
// loaded one; a condition failure surfaces as ErrConflict.
func (s *DynamoStore) Save(ctx context.Context, conv *Conversation) error {
	if conv == nil || conv.Key == "" {
		return errors.New("state: conversation with key required")
	}

	now := s.nowFunc()
	loadedTurn := conv.Turn

	saved := conv.Clone()
	saved.Turn = loadedTurn + 1
	saved.LastActivity = now
	saved.ExpiresAt = now.Add(s.ttl).Unix()

	item, err := attributevalue.MarshalMap(saved)
	if err != nil {
		return fmt.Errorf("state: failed to marshal conversation: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(conversationKey) OR turn = :loaded"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":loaded": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", loadedTurn)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConflict
		}
		return fmt.Errorf("state: failed to persist conversation: %w", err)
	}

	conv.Turn = saved.Turn
	conv.LastActivity = saved.LastActivity
	return nil
}

// Expire scans for conversations idle since before olderThan and deletes
// them. The table's TTL reaper does the same job eventually; Expire exists
// for the ops endpoint that wants the storage reclaimed now, with a count.
// Each delete re-checks lastActivity so a conversation refreshed mid-sweep
// survives.
func (s *DynamoStore) Expire(ctx context.Context, olderThan time.Time) (int, error) {
	cutoff := &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", olderThan.Unix())}

	removed := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.tableName),
			FilterExpression:          aws.String("lastActivity < :cutoff"),
			ProjectionExpression:      aws.String("conversationKey"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":cutoff": cutoff},
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return removed, fmt.Errorf("state: failed to scan stale conversations: %w", err)
		}

		for _, item := range out.Items {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:                 aws.String(s.tableName),
				Key:                       map[string]types.AttributeValue{"conversationKey": item["conversationKey"]},
				ConditionExpression:       aws.String("lastActivity < :cutoff"),
				ExpressionAttributeValues: map[string]types.AttributeValue{":cutoff": cutoff},
			})
			if err != nil {
				var ccf *types.ConditionalCheckFailedException
				if errors.As(err, &ccf) {
					continue
				}
				return removed, fmt.Errorf("state: failed to delete stale conversation: %w", err)
			}
			removed++
		}

		startKey = out.LastEvaluatedKey
		if len(startKey) == 0 {
			return removed, nil
		}
	}
}

var _ Store = (*DynamoStore)(nil)
