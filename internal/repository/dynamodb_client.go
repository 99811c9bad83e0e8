package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"catalog-assistant/internal/domain"
)

const (
	skPrefixMsg  = "MSG#"
	skMeta       = "META#"
	ttlDuration  = 90 * 24 * time.Hour
	maxTxnTurns  = 99 // TransactWriteItems caps at 100 items, one is the header
	pkPrefixChat = "CHAT#"
)

// dynamodbAPI is the minimal DynamoDB interface required by ChatLog.
// Defined here for testability.
type dynamodbAPI interface {
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// ChatLog is the append-only audit trail of conversations. Every write adds
// one item per turn and upserts the session header, atomically. It is never
// read back by the chat pipeline.
type ChatLog struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
	newID     func() string
}

// NewChatLog creates a ChatLog writing to tableName.
func NewChatLog(api dynamodbAPI, tableName string) (*ChatLog, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &ChatLog{
		api:       api,
		tableName: tableName,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// chatPK returns the DynamoDB partition key for a chat.
func chatPK(chatID string) string {
	return pkPrefixChat + chatID
}

// skTimeLayout is fixed width so sort keys order lexically by time.
const skTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// msgSK orders messages chronologically. seq is the turn's position in its
// record, so a user turn sorts before the reply stamped in the same instant;
// the id suffix keeps keys unique.
func msgSK(ts time.Time, seq int, id string) string {
	return fmt.Sprintf("%s%s#%02d#%s", skPrefixMsg, ts.UTC().Format(skTimeLayout), seq, id)
}

// AppendTurns persists the record's turns and upserts the session header.
func (c *ChatLog) AppendTurns(ctx context.Context, rec domain.ChatRecord) error {
	chatID := strings.TrimSpace(rec.ChatID)
	if chatID == "" {
		return errors.New("repository: AppendTurns: chat id is required")
	}
	if len(rec.Turns) == 0 {
		return nil
	}
	if len(rec.Turns) > maxTxnTurns {
		return fmt.Errorf("repository: AppendTurns: %d turns exceed the transaction limit", len(rec.Turns))
	}
	channel := rec.Channel
	if channel == "" {
		channel = domain.ChannelFromChatID(chatID)
	}

	now := c.now().UTC()
	ttl := now.Add(ttlDuration).Unix()

	items := make([]types.TransactWriteItem, 0, len(rec.Turns)+1)
	for i, t := range rec.Turns {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = now
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(c.tableName),
				Item:                turnItem(chatID, channel, t, ts, i, c.newID(), ttl),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(c.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: chatPK(chatID)},
				"SK": &types.AttributeValueMemberS{Value: skMeta},
			},
			UpdateExpression: aws.String("SET chatId = :chatId, channel = :channel, updatedAt = :updatedAt, " +
				"createdAt = if_not_exists(createdAt, :updatedAt), #ttl = :ttl ADD messageCount :n"),
			ExpressionAttributeNames: map[string]string{"#ttl": "ttl"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":chatId":    &types.AttributeValueMemberS{Value: chatID},
				":channel":   &types.AttributeValueMemberS{Value: string(channel)},
				":updatedAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
				":ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
				":n":         &types.AttributeValueMemberN{Value: strconv.Itoa(len(rec.Turns))},
			},
		},
	})

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("repository: AppendTurns: %w", err)
	}
	return nil
}

func turnItem(chatID string, channel domain.Channel, t domain.Turn, ts time.Time, seq int, id string, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":      &types.AttributeValueMemberS{Value: chatPK(chatID)},
		"SK":      &types.AttributeValueMemberS{Value: msgSK(ts, seq, id)},
		"chatId":  &types.AttributeValueMemberS{Value: chatID},
		"channel": &types.AttributeValueMemberS{Value: string(channel)},
		"role":    &types.AttributeValueMemberS{Value: t.Role},
		"text":    &types.AttributeValueMemberS{Value: t.Content},
		"ts":      &types.AttributeValueMemberS{Value: ts.UTC().Format(time.RFC3339Nano)},
		"ttl":     &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
}
