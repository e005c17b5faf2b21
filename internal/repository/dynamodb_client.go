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
	"go.uber.org/zap"

	"gh-presence/internal/domain"
)

const (
	pkPrefixSession  = "SESSION#"
	skPresence       = "PRESENCE"
	DefaultPathIndex = "path-updatedAt-index"
	ttlDuration      = 24 * time.Hour // expired sessions are removed by DynamoDB TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client stores one presence item per session in a DynamoDB table.
//
// Items are keyed by session so that every write is a full-record upsert.
// Readers go through a sparse global secondary index on (path, updatedAt);
// a session with a null path has no path attribute and drops out of it.
type Client struct {
	api       dynamodbAPI
	tableName string
	indexName string
	logger    *zap.Logger
}

type ClientOption func(*Client)

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a new repository Client. An empty indexName selects DefaultPathIndex.
func New(api dynamodbAPI, tableName, indexName string, opts ...ClientOption) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if strings.TrimSpace(indexName) == "" {
		indexName = DefaultPathIndex
	}
	c := &Client{api: api, tableName: tableName, indexName: indexName}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return pkPrefixSession + sessionID
}

// Upsert writes or replaces the record for rec.SessionID.
func (c *Client) Upsert(ctx context.Context, rec domain.PresenceRecord) error {
	if rec.SessionID == "" || rec.User == "" {
		return errors.New("repository: Upsert: session ID and user are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      presenceItem(rec),
	})
	if err != nil {
		return fmt.Errorf("repository: Upsert: %w", err)
	}
	return nil
}

// Query returns records on q.Path updated after q.UpdatedAfter, excluding q.ExcludeUser.
// Items that cannot be decoded are logged and skipped.
func (c *Client) Query(ctx context.Context, q domain.PresenceQuery) ([]domain.PresenceRecord, error) {
	if q.Path == "" {
		return nil, nil
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(c.indexName),
		KeyConditionExpression: aws.String("#path = :path AND updatedAt > :cutoff"),
		ExpressionAttributeNames: map[string]string{
			"#path": "path",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":path":   &types.AttributeValueMemberS{Value: q.Path},
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(q.UpdatedAfter.UnixMilli(), 10)},
		},
	}
	if q.ExcludeUser != "" {
		in.FilterExpression = aws.String("#user <> :self")
		in.ExpressionAttributeNames["#user"] = "user"
		in.ExpressionAttributeValues[":self"] = &types.AttributeValueMemberS{Value: q.ExcludeUser}
	}

	var recs []domain.PresenceRecord
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: Query: %w", err)
		}
		if out == nil {
			break
		}
		for _, item := range out.Items {
			rec, err := itemToPresence(item)
			if err != nil {
				c.logger.Warn("skipping malformed presence item", zap.String("path", q.Path), zap.Error(err))
				continue
			}
			recs = append(recs, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return recs, nil
}

func presenceItem(rec domain.PresenceRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(rec.SessionID)},
		"SK":        &types.AttributeValueMemberS{Value: skPresence},
		"sessionId": &types.AttributeValueMemberS{Value: rec.SessionID},
		"user":      &types.AttributeValueMemberS{Value: rec.User},
		"isTyping":  &types.AttributeValueMemberBOOL{Value: rec.IsTyping},
		"updatedAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.UpdatedAt.UnixMilli(), 10)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.UpdatedAt.Add(ttlDuration).Unix(), 10)},
	}
	if rec.Path != "" {
		item["path"] = &types.AttributeValueMemberS{Value: rec.Path}
	}
	if rec.Avatar != "" {
		item["avatar"] = &types.AttributeValueMemberS{Value: rec.Avatar}
	}
	return item
}

// itemToPresence converts a DynamoDB attribute map to a PresenceRecord.
func itemToPresence(item map[string]types.AttributeValue) (domain.PresenceRecord, error) {
	sessionID, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.PresenceRecord{}, err
	}
	user, err := strAttr(item, "user")
	if err != nil {
		return domain.PresenceRecord{}, err
	}
	updatedAt, err := intAttr(item, "updatedAt")
	if err != nil {
		return domain.PresenceRecord{}, err
	}
	path, _ := strAttr(item, "path")     // absent when null
	avatar, _ := strAttr(item, "avatar") // optional
	typing, _ := boolAttr(item, "isTyping")

	return domain.PresenceRecord{
		SessionID: sessionID,
		User:      user,
		Avatar:    avatar,
		Path:      path,
		IsTyping:  typing,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, fmt.Errorf("repository: missing attribute %q", key)
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("repository: attribute %q is not a bool", key)
	}
	return b.Value, nil
}
