// Package dynamo stores preferences in DynamoDB, one item per namespace.
//
// Item layout:
//
//	PK          S  "NS#<namespace>"
//	preferences M  key -> {kind S, value S, updatedAt S}
//	updatedAt   S  RFC3339 timestamp of the last write
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kalambet/prefs/internal/storage"
)

const (
	ensureMapExpr = "SET preferences = if_not_exists(preferences, :empty)"
	setKeyExpr    = "SET preferences.#k = :v, updatedAt = :now"
	removeKeyExpr = "REMOVE preferences.#k"
	hasMapCond    = "attribute_exists(preferences)"
)

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Config selects the table and, for DynamoDB Local, an endpoint override.
type Config struct {
	Region   string
	Endpoint string
	Table    string
}

// Store implements the preference backend on DynamoDB.
type Store struct {
	client API
	table  string
}

// Open loads AWS configuration from the default chain and returns a Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Table == "" {
		return nil, errors.New("dynamo: table name is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return New(dynamodb.NewFromConfig(awsCfg), cfg.Table), nil
}

// New wraps an existing client.
func New(client API, table string) *Store {
	return &Store{client: client, table: table}
}

func (s *Store) pk(namespace string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "NS#" + namespace},
	}
}

func (s *Store) Get(ctx context.Context, namespace, key string) (storage.Record, error) {
	all, err := s.List(ctx, namespace)
	if err != nil {
		return storage.Record{}, err
	}
	r, ok := all[key]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, namespace string) (map[string]storage.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.pk(namespace),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem: %w", err)
	}
	return unmarshalRecords(out.Item)
}

// Put upserts a single key. The first call creates the preferences map if
// the namespace item does not exist yet.
func (s *Store) Put(ctx context.Context, namespace, key string, r storage.Record) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	now := r.UpdatedAt.UTC().Format(time.RFC3339Nano)

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              s.pk(namespace),
		UpdateExpression: aws.String(ensureMapExpr),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}},
		},
	})
	if err != nil {
		return fmt.Errorf("UpdateItem (ensure map): %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.table),
		Key:                      s.pk(namespace),
		UpdateExpression:         aws.String(setKeyExpr),
		ExpressionAttributeNames: map[string]string{"#k": key},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"kind":      &types.AttributeValueMemberS{Value: r.Kind},
				"value":     &types.AttributeValueMemberS{Value: r.Value},
				"updatedAt": &types.AttributeValueMemberS{Value: now},
			}},
			":now": &types.AttributeValueMemberS{Value: now},
		},
	})
	if err != nil {
		return fmt.Errorf("UpdateItem (SET): %w", err)
	}
	return nil
}

// Delete removes key. A namespace without a preferences map is left alone.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.table),
		Key:                      s.pk(namespace),
		UpdateExpression:         aws.String(removeKeyExpr),
		ConditionExpression:      aws.String(hasMapCond),
		ExpressionAttributeNames: map[string]string{"#k": key},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("UpdateItem (REMOVE): %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, namespace string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.pk(namespace),
	})
	if err != nil {
		return fmt.Errorf("DeleteItem: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error { return nil }

// unmarshalRecords extracts the preferences map from a namespace item.
func unmarshalRecords(item map[string]types.AttributeValue) (map[string]storage.Record, error) {
	result := make(map[string]storage.Record)
	attr, ok := item["preferences"]
	if !ok {
		return result, nil
	}

	prefsMap, ok := attr.(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("preferences attribute is not a map")
	}

	for k, v := range prefsMap.Value {
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("preference %q is not a map", k)
		}
		kind, err := stringAttr(m.Value, "kind")
		if err != nil {
			return nil, fmt.Errorf("preference %q: %w", k, err)
		}
		value, err := stringAttr(m.Value, "value")
		if err != nil {
			return nil, fmt.Errorf("preference %q: %w", k, err)
		}
		r := storage.Record{Kind: kind, Value: value}
		if ts, err := stringAttr(m.Value, "updatedAt"); err == nil {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				r.UpdatedAt = t
			}
		}
		result[k] = r
	}
	return result, nil
}

func stringAttr(m map[string]types.AttributeValue, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", fmt.Errorf("missing %s attribute", name)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("%s attribute is not a string", name)
	}
	return s.Value, nil
}
