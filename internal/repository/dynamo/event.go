package dynamo

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/xid"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/model"
)

// eventItem is the stored shape of an event. GSI1SK mirrors Date so that a
// GSI1 query on EVENT returns events in date order.
type eventItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI1PK    string `dynamodbav:"GSI1PK"`
	GSI1SK    string `dynamodbav:"GSI1SK"`
	EventID   string `dynamodbav:"eventId"`
	Title     string `dynamodbav:"title"`
	Date      string `dynamodbav:"date"`
	Location  string `dynamodbav:"location,omitempty"`
	CreatedBy string `dynamodbav:"createdBy"`
	CreatedAt string `dynamodbav:"createdAt"`
}

func eventKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: eventPrefix + id},
		"SK": &types.AttributeValueMemberS{Value: skMetadata},
	}
}

func (it eventItem) toModel() model.Event {
	id := it.EventID
	if id == "" {
		id = strings.TrimPrefix(it.PK, eventPrefix)
	}
	return model.Event{
		ID:        id,
		Title:     it.Title,
		Date:      it.Date,
		Location:  it.Location,
		CreatedBy: it.CreatedBy,
		CreatedAt: parseTime(it.CreatedAt),
	}
}

func unmarshalEvent(av map[string]types.AttributeValue) (*model.Event, error) {
	var it eventItem
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshalling event: %w", err)
	}
	e := it.toModel()
	return &e, nil
}

// CreateEvent puts EVENT#<id>/METADATA, conditional on the key being new.
func (t *Table) CreateEvent(ctx context.Context, event *model.Event) error {
	if event.ID == "" {
		event.ID = xid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = t.now().UTC()
	}

	item, err := attributevalue.MarshalMap(eventItem{
		PK:        eventPrefix + event.ID,
		SK:        skMetadata,
		GSI1PK:    gsiEvents,
		GSI1SK:    event.Date,
		EventID:   event.ID,
		Title:     event.Title,
		Date:      event.Date,
		Location:  event.Location,
		CreatedBy: event.CreatedBy,
		CreatedAt: formatTime(event.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("dynamo: marshalling event: %w", err)
	}

	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return fmt.Errorf("dynamo: building condition: %w", err)
	}

	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(t.name),
		Item:                     item,
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return apperror.Conflict("Event already exists")
		}
		return fmt.Errorf("dynamo: creating event: %w", err)
	}
	return nil
}

// GetEvent reads EVENT#<id>/METADATA.
func (t *Table) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.name),
		Key:       eventKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: getting event %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, apperror.NotFound("Event")
	}
	return unmarshalEvent(out.Item)
}

// UpdateEvent SETs the provided fields, conditional on the event existing,
// and returns the item as it is after the update.
func (t *Table) UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) (*model.Event, error) {
	if upd.Empty() {
		return t.GetEvent(ctx, id)
	}

	var update expression.UpdateBuilder
	set := func(name, value string) {
		update = update.Set(expression.Name(name), expression.Value(value))
	}
	if upd.Title != nil {
		set("title", *upd.Title)
	}
	if upd.Date != nil {
		set("date", *upd.Date)
		set("GSI1SK", *upd.Date)
	}
	if upd.Location != nil {
		set("location", *upd.Location)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		WithUpdate(update).
		Build()
	if err != nil {
		return nil, fmt.Errorf("dynamo: building update: %w", err)
	}

	out, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.name),
		Key:                       eventKey(id),
		ConditionExpression:       expr.Condition(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, apperror.NotFound("Event")
		}
		return nil, fmt.Errorf("dynamo: updating event %s: %w", id, err)
	}
	return unmarshalEvent(out.Attributes)
}

// DeleteEvent removes the event, then every assignment to it (found through
// GSI1PK=EVENT#<id>).
func (t *Table) DeleteEvent(ctx context.Context, id string) error {
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return fmt.Errorf("dynamo: building condition: %w", err)
	}

	_, err = t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(t.name),
		Key:                      eventKey(id),
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return apperror.NotFound("Event")
		}
		return fmt.Errorf("dynamo: deleting event %s: %w", id, err)
	}

	keyCond := expression.Key("GSI1PK").Equal(expression.Value(eventPrefix + id))
	items, err := t.queryAll(ctx, IndexGSI1, keyCond)
	if err != nil {
		return fmt.Errorf("dynamo: listing assignments of event %s: %w", id, err)
	}
	for _, item := range items {
		_, err := t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(t.name),
			Key: map[string]types.AttributeValue{
				"PK": item["PK"],
				"SK": item["SK"],
			},
		})
		if err != nil {
			return fmt.Errorf("dynamo: deleting assignment of event %s: %w", id, err)
		}
	}
	return nil
}

// ListEvents queries GSI1 for GSI1PK=EVENT, which yields events in date
// order.
func (t *Table) ListEvents(ctx context.Context) ([]model.Event, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(gsiEvents))
	items, err := t.queryAll(ctx, IndexGSI1, keyCond)
	if err != nil {
		return nil, fmt.Errorf("dynamo: listing events: %w", err)
	}

	var its []eventItem
	if err := attributevalue.UnmarshalListOfMaps(items, &its); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshalling events: %w", err)
	}

	events := make([]model.Event, 0, len(its))
	for _, it := range its {
		events = append(events, it.toModel())
	}
	return events, nil
}

// queryAll runs a Query to completion, following LastEvaluatedKey. An empty
// index name queries the base table.
func (t *Table) queryAll(ctx context.Context, index string, keyCond expression.KeyConditionBuilder) ([]map[string]types.AttributeValue, error) {
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("building key condition: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(t.name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}

	var items []map[string]types.AttributeValue
	p := dynamodb.NewQueryPaginator(t.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}
