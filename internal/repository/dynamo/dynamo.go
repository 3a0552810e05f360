// Package dynamo implements the repository interfaces on a single DynamoDB
// table.
//
// TABLE LAYOUT (PK/SK primary key, GSI1PK/GSI1SK on index "GSI1"):
//
//	item          PK              SK             GSI1PK         GSI1SK
//	user          USER#<id>       PROFILE        USER           <email>
//	email marker  EMAIL#<email>   UNIQUE         -              -
//	event         EVENT#<id>      METADATA       EVENT          <date>
//	assignment    USER#<userId>   EVENT#<id>     EVENT#<id>     USER#<userId>
//
// Uniqueness is enforced by conditional writes, never by a read-then-write:
// an email marker is written in the same transaction as its user, and an
// assignment is put only if its key does not exist yet.
package dynamo

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/flycalcio/guestapp/internal/repository"
)

// IndexGSI1 is the name of the table's only global secondary index.
const IndexGSI1 = "GSI1"

const (
	userPrefix  = "USER#"
	eventPrefix = "EVENT#"
	emailPrefix = "EMAIL#"

	skProfile  = "PROFILE"
	skMetadata = "METADATA"
	skUnique   = "UNIQUE"

	gsiUsers  = "USER"
	gsiEvents = "EVENT"
)

// API is the subset of *dynamodb.Client used here. Tests substitute an
// in-memory fake.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// compile-time check that *Table implements every repository interface
var _ repository.Store = (*Table)(nil)

// Table is a repository.Store over one DynamoDB table.
type Table struct {
	client API
	name   string
	now    func() time.Time
}

// New wraps client for the named table, typically
// dynamodb.NewFromConfig(awsCfg).
func New(client API, tableName string) *Table {
	return &Table{client: client, name: tableName, now: time.Now}
}

// Close is a no-op: the SDK client holds no resources that need releasing.
func (t *Table) Close() error { return nil }

// isConditionFailed reports whether err is a failed ConditionExpression on a
// single-item write.
func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// isTransactionConditionFailed reports whether a TransactWriteItems call was
// cancelled because one of its conditions failed (as opposed to throttling
// or a conflicting transaction).
func isTransactionConditionFailed(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// Timestamps are written as RFC 3339. Items created by the previous system
// carry a naive ISO-8601 UTC timestamp without offset.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
