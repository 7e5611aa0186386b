package s3

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/hupe1980/dnagram/blobstore"
)

// DDBCommitStore implements blobstore.Store on S3 with DynamoDB as the
// commit log. Every Put writes an immutable, versioned S3 object and then
// commits it with a conditional PutItem; only the committed version is
// visible to Get. Deletes commit a tombstone version.
//
// Table schema:
//   - Partition key: base_uri (string), the base URI plus the blob name
//   - Sort key: version (number), monotonically increasing per name
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name dnagram-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	s3Store   *Store
	ddbClient DDBClient
	tableName string
	baseURI   string
}

var _ blobstore.Store = (*DDBCommitStore)(nil)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentModification is returned when a concurrent write is detected.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// NewDDBCommitStore creates a new S3+DynamoDB commit store.
// The baseURI should be "s3://bucket/prefix"; it namespaces the partition keys.
func NewDDBCommitStore(s3Store *Store, ddbClient DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		s3Store:   s3Store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

type commit struct {
	version uint64
	object  string
	deleted bool
}

func (s *DDBCommitStore) partition(name string) string {
	return s.baseURI + "#" + name
}

// objectName returns a unique object name for a version of name. Racing
// writers of the same version never share an object.
func objectName(name string, version uint64) string {
	return fmt.Sprintf("%s.v%020d.%s", name, version, uuid.NewString())
}

// baseName strips the version suffix added by objectName.
func baseName(object string) (string, bool) {
	dot := strings.LastIndexByte(object, '.')
	if dot < 0 || uuid.Validate(object[dot+1:]) != nil {
		return "", false
	}
	rest := object[:dot]
	i := strings.LastIndex(rest, ".v")
	if i < 0 || len(rest)-i-2 != 20 {
		return "", false
	}
	if _, err := strconv.ParseUint(rest[i+2:], 10, 64); err != nil {
		return "", false
	}
	return rest[:i], true
}

// latest returns the newest commit for name, or a zero commit when none exists.
func (s *DDBCommitStore) latest(ctx context.Context, name string) (commit, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.partition(name)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return commit{}, fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return commit{}, nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return commit{}, errors.New("invalid version attribute in DynamoDB")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return commit{}, fmt.Errorf("failed to parse version: %w", err)
	}

	c := commit{version: version}
	if del, ok := item["deleted"].(*types.AttributeValueMemberBOOL); ok {
		c.deleted = del.Value
	}
	if obj, ok := item["object_key"].(*types.AttributeValueMemberS); ok {
		c.object = obj.Value
	} else if !c.deleted {
		return commit{}, errors.New("invalid object_key attribute in DynamoDB")
	}
	return c, nil
}

func (s *DDBCommitStore) commit(ctx context.Context, name string, c commit) error {
	item := map[string]types.AttributeValue{
		"base_uri": &types.AttributeValueMemberS{Value: s.partition(name)},
		"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(c.version, 10)},
		"deleted":  &types.AttributeValueMemberBOOL{Value: c.deleted},
	}
	if c.object != "" {
		item["object_key"] = &types.AttributeValueMemberS{Value: c.object}
	}

	_, err := s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version to DynamoDB: %w", err)
	}
	return nil
}

// Get returns the content of the latest committed version.
func (s *DDBCommitStore) Get(ctx context.Context, name string) ([]byte, error) {
	c, err := s.latest(ctx, name)
	if err != nil {
		return nil, err
	}
	if c.version == 0 || c.deleted {
		return nil, blobstore.ErrNotFound
	}
	return s.s3Store.Get(ctx, c.object)
}

// Put uploads a new version and commits it. If another writer committed
// first the upload is discarded and ErrConcurrentModification is returned.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	prev, err := s.latest(ctx, name)
	if err != nil {
		return err
	}

	next := commit{version: prev.version + 1}
	next.object = objectName(name, next.version)
	if err := s.s3Store.Put(ctx, next.object, data); err != nil {
		return err
	}
	if err := s.commit(ctx, name, next); err != nil {
		_ = s.s3Store.Delete(ctx, next.object)
		return err
	}
	if prev.object != "" && !prev.deleted {
		_ = s.s3Store.Delete(ctx, prev.object)
	}
	return nil
}

// Delete commits a tombstone and removes the current object.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	prev, err := s.latest(ctx, name)
	if err != nil {
		return err
	}
	if prev.version == 0 || prev.deleted {
		return nil
	}
	if err := s.commit(ctx, name, commit{version: prev.version + 1, deleted: true}); err != nil {
		return err
	}
	return s.s3Store.Delete(ctx, prev.object)
}

// List returns the names with a live committed version.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	objects, err := s.s3Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, obj := range objects {
		name, ok := baseName(obj)
		if !ok || slices.Contains(names, name) {
			continue
		}
		c, err := s.latest(ctx, name)
		if err != nil {
			return nil, err
		}
		if c.version > 0 && !c.deleted && c.object == obj {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}
