// Package dynamo stores decisions, matches and channels in DynamoDB.
//
// Uniqueness of a match per pair key and of a channel per match comes from
// conditional writes (attribute_not_exists on the partition key). A match and
// its channel are written in one TransactWriteItems call.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/matching"
)

const conditionalCheckFailed = "ConditionalCheckFailed"

// API is the subset of the DynamoDB client the store needs.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Tables names the three tables used by the store.
type Tables struct {
	Decisions string
	Matches   string
	Channels  string
}

// TablesWithPrefix returns the default table names under prefix.
func TablesWithPrefix(prefix string) Tables {
	return Tables{
		Decisions: prefix + "swipe_decisions",
		Matches:   prefix + "matches",
		Channels:  prefix + "channels",
	}
}

// NewClient builds a DynamoDB client from the default AWS credential chain.
// endpoint may point at DynamoDB Local.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

type decisionItem struct {
	ActorID     string    `dynamodbav:"actor_id"`
	TargetID    string    `dynamodbav:"target_id"`
	Disposition string    `dynamodbav:"disposition"`
	DecidedAt   time.Time `dynamodbav:"decided_at"`
}

type matchItem struct {
	PairKey   string    `dynamodbav:"pair_key"`
	ID        string    `dynamodbav:"id"`
	PartyA    string    `dynamodbav:"party_a"`
	PartyB    string    `dynamodbav:"party_b"`
	Status    string    `dynamodbav:"status"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

type channelItem struct {
	MatchPairKey string    `dynamodbav:"match_pair_key"`
	ID           string    `dynamodbav:"id"`
	MatchID      string    `dynamodbav:"match_id"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
}

// Store implements matching.DecisionStore and matching.MatchStore.
type Store struct {
	client API
	tables Tables
}

func NewStore(client API, tables Tables) *Store {
	return &Store{client: client, tables: tables}
}

func (s *Store) Put(ctx context.Context, decision matching.SwipeDecision) error {
	item, err := attributevalue.MarshalMap(decisionItem{
		ActorID:     decision.ActorID,
		TargetID:    decision.TargetID,
		Disposition: string(decision.Disposition),
		DecidedAt:   decision.DecidedAt.UTC(),
	})
	if err != nil {
		return apperrors.NewInternalError("failed to marshal decision", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Decisions),
		Item:      item,
	}); err != nil {
		return apperrors.NewStorageUnavailableError("put decision", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, actorID, targetID string) (matching.SwipeDecision, bool, error) {
	var item decisionItem
	found, err := s.getItem(ctx, "get decision", s.tables.Decisions, map[string]types.AttributeValue{
		"actor_id":  &types.AttributeValueMemberS{Value: actorID},
		"target_id": &types.AttributeValueMemberS{Value: targetID},
	}, &item)
	if err != nil || !found {
		return matching.SwipeDecision{}, false, err
	}
	return matching.SwipeDecision{
		ActorID:     item.ActorID,
		TargetID:    item.TargetID,
		Disposition: matching.Disposition(item.Disposition),
		DecidedAt:   item.DecidedAt.UTC(),
	}, true, nil
}

func (s *Store) CreateMatch(ctx context.Context, match matching.Match, channel matching.Channel) (bool, error) {
	matchAV, err := attributevalue.MarshalMap(toMatchItem(match))
	if err != nil {
		return false, apperrors.NewInternalError("failed to marshal match", err)
	}
	channelAV, err := attributevalue.MarshalMap(toChannelItem(channel))
	if err != nil {
		return false, apperrors.NewInternalError("failed to marshal channel", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.tables.Matches),
				Item:                matchAV,
				ConditionExpression: aws.String("attribute_not_exists(pair_key)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.tables.Channels),
				Item:                channelAV,
				ConditionExpression: aws.String("attribute_not_exists(match_pair_key)"),
			}},
		},
	})
	if err == nil {
		return true, nil
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) && conditionFailed(canceled.CancellationReasons) {
		return false, nil
	}
	return false, apperrors.NewStorageUnavailableError("create match", err)
}

func conditionFailed(reasons []types.CancellationReason) bool {
	for _, reason := range reasons {
		if aws.ToString(reason.Code) == conditionalCheckFailed {
			return true
		}
	}
	return false
}

func (s *Store) CreateChannel(ctx context.Context, channel matching.Channel) (bool, error) {
	item, err := attributevalue.MarshalMap(toChannelItem(channel))
	if err != nil {
		return false, apperrors.NewInternalError("failed to marshal channel", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tables.Channels),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(match_pair_key)"),
	})
	if err == nil {
		return true, nil
	}

	var failed *types.ConditionalCheckFailedException
	if errors.As(err, &failed) {
		return false, nil
	}
	return false, apperrors.NewStorageUnavailableError("create channel", err)
}

func (s *Store) FindMatch(ctx context.Context, key matching.PairKey) (matching.Match, bool, error) {
	var item matchItem
	found, err := s.getItem(ctx, "find match", s.tables.Matches, map[string]types.AttributeValue{
		"pair_key": &types.AttributeValueMemberS{Value: string(key)},
	}, &item)
	if err != nil || !found {
		return matching.Match{}, false, err
	}
	return matching.Match{
		ID:        item.ID,
		PairKey:   matching.PairKey(item.PairKey),
		PartyA:    item.PartyA,
		PartyB:    item.PartyB,
		Status:    matching.MatchStatus(item.Status),
		CreatedAt: item.CreatedAt.UTC(),
	}, true, nil
}

func (s *Store) FindChannel(ctx context.Context, key matching.PairKey) (matching.Channel, bool, error) {
	var item channelItem
	found, err := s.getItem(ctx, "find channel", s.tables.Channels, map[string]types.AttributeValue{
		"match_pair_key": &types.AttributeValueMemberS{Value: string(key)},
	}, &item)
	if err != nil || !found {
		return matching.Channel{}, false, err
	}
	return matching.Channel{
		ID:           item.ID,
		MatchID:      item.MatchID,
		MatchPairKey: matching.PairKey(item.MatchPairKey),
		CreatedAt:    item.CreatedAt.UTC(),
	}, true, nil
}

func (s *Store) getItem(ctx context.Context, operation, table string, key map[string]types.AttributeValue, out interface{}) (bool, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, apperrors.NewStorageUnavailableError(operation, err)
	}
	if len(output.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(output.Item, out); err != nil {
		return false, apperrors.NewInternalError("failed to unmarshal "+table+" item", err)
	}
	return true, nil
}

func toMatchItem(match matching.Match) matchItem {
	return matchItem{
		PairKey:   string(match.PairKey),
		ID:        match.ID,
		PartyA:    match.PartyA,
		PartyB:    match.PartyB,
		Status:    string(match.Status),
		CreatedAt: match.CreatedAt.UTC(),
	}
}

func toChannelItem(channel matching.Channel) channelItem {
	return channelItem{
		MatchPairKey: string(channel.MatchPairKey),
		ID:           channel.ID,
		MatchID:      channel.MatchID,
		CreatedAt:    channel.CreatedAt.UTC(),
	}
}
