package ddb

import (
	"apollocfg/internal/backends/codec"
	"apollocfg/internal/types"
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CacheStore keeps one item per (appID, namespace): PK "APP#<appID>", SK "NS#<namespace>". PutItem replaces the
// whole item so readers never see a partial snapshot.
type CacheStore struct {
	table string
	appID string
	cli   *dynamodb.Client
}

type cacheItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	ReleaseKey string `dynamodbav:"release_key"`
	Data       string `dynamodbav:"data"`
	UpdatedAt  int64  `dynamodbav:"updated_at"`
}

// NewCacheStore creates the table when it does not exist yet.
func NewCacheStore(ctx context.Context, table, appID string, cli *dynamodb.Client) (*CacheStore, error) {
	if err := createTableIfNotExists(ctx, cli, table); err != nil {
		return nil, types.Err(types.ErrCache, err, "create table %s", table)
	}
	return &CacheStore{table: table, appID: appID, cli: cli}, nil
}

func (s *CacheStore) Write(ctx context.Context, snap *types.Snapshot) error {
	data, err := codec.EncodeSnapshot(snap)
	if err != nil {
		return types.Err(types.ErrCache, err, "encode namespace %s", snap.Namespace())
	}
	item, err := attributevalue.MarshalMap(cacheItem{
		PK:         pkApp(s.appID),
		SK:         skNamespace(snap.Namespace()),
		ReleaseKey: snap.ReleaseKey(),
		Data:       data,
		UpdatedAt:  time.Now().Unix(),
	})
	if err != nil {
		return types.Err(types.ErrCache, err, "marshal item")
	}
	_, err = s.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      item,
	})
	if err != nil {
		return types.Err(types.ErrCache, err, "put namespace %s", snap.Namespace())
	}
	return nil
}

func (s *CacheStore) Read(ctx context.Context, namespace string) (*types.Snapshot, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.table,
		Key: map[string]ddbTypes.AttributeValue{
			"PK": &ddbTypes.AttributeValueMemberS{Value: pkApp(s.appID)},
			"SK": &ddbTypes.AttributeValueMemberS{Value: skNamespace(namespace)},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, types.Err(types.ErrCache, err, "get namespace %s", namespace)
	}
	if out.Item == nil {
		return nil, types.ErrNotFound
	}
	var item cacheItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, types.Err(types.ErrCache, err, "unmarshal namespace %s", namespace)
	}
	return codec.DecodeSnapshot(item.Data)
}

func (s *CacheStore) Namespaces(ctx context.Context) ([]string, error) {
	out, err := s.cli.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.table,
		KeyConditionExpression: awsString("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":pk": &ddbTypes.AttributeValueMemberS{Value: pkApp(s.appID)},
			":sk": &ddbTypes.AttributeValueMemberS{Value: SNamespace + "#"},
		},
		ProjectionExpression: awsString("SK"),
	})
	if err != nil {
		return nil, types.Err(types.ErrCache, err, "query namespaces")
	}
	namespaces := make([]string, 0, len(out.Items))
	for _, it := range out.Items {
		var sk struct {
			SK string `dynamodbav:"SK"`
		}
		if err := attributevalue.UnmarshalMap(it, &sk); err != nil {
			return nil, types.Err(types.ErrCache, err, "unmarshal key")
		}
		if ns := parseNamespace(sk.SK); ns != "" {
			namespaces = append(namespaces, ns)
		}
	}
	sort.Strings(namespaces)
	return namespaces, nil
}
