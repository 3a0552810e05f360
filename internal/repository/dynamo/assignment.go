package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/model"
)

// assignmentItem lives in the user's partition, so a user's assignments are
// one Query; GSI1 inverts it for "who is assigned to this event".
type assignmentItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	UserID     string `dynamodbav:"userId"`
	EventID    string `dynamodbav:"eventId"`
	Status     string `dynamodbav:"status"`
	AssignedBy string `dynamodbav:"assignedBy"`
	AssignedAt string `dynamodbav:"assignedAt"`
}

func assignmentKey(userID, eventID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPrefix + userID},
		"SK": &types.AttributeValueMemberS{Value: eventPrefix + eventID},
	}
}

// CreateAssignment puts USER#<userId>/EVENT#<eventId>, conditional on the
// key not existing.
func (t *Table) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	if a.Status == "" {
		a.Status = model.AssignmentConfirmed
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = t.now().UTC()
	}

	item, err := attributevalue.MarshalMap(assignmentItem{
		PK:         userPrefix + a.UserID,
		SK:         eventPrefix + a.EventID,
		GSI1PK:     eventPrefix + a.EventID,
		GSI1SK:     userPrefix + a.UserID,
		UserID:     a.UserID,
		EventID:    a.EventID,
		Status:     string(a.Status),
		AssignedBy: a.AssignedBy,
		AssignedAt: formatTime(a.AssignedAt),
	})
	if err != nil {
		return fmt.Errorf("dynamo: marshalling assignment: %w", err)
	}

	cond, err := expression.NewBuilder().
		WithCondition(expression.And(
			expression.AttributeNotExists(expression.Name("PK")),
			expression.AttributeNotExists(expression.Name("SK")),
		)).
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
			return apperror.Conflict("User already assigned to event")
		}
		return fmt.Errorf("dynamo: creating assignment: %w", err)
	}
	return nil
}

// DeleteAssignment removes the assignment, conditional on it existing.
func (t *Table) DeleteAssignment(ctx context.Context, userID, eventID string) error {
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return fmt.Errorf("dynamo: building condition: %w", err)
	}

	_, err = t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(t.name),
		Key:                      assignmentKey(userID, eventID),
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return apperror.NotFound("Assignment")
		}
		return fmt.Errorf("dynamo: deleting assignment: %w", err)
	}
	return nil
}

// ListAssignedEvents queries the user's partition for EVENT# sort keys, then
// reads each event. Events deleted since the assignment was made are
// skipped. The result is sorted latest date first.
func (t *Table) ListAssignedEvents(ctx context.Context, userID string) ([]model.Event, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(userPrefix + userID)).
		And(expression.Key("SK").BeginsWith(eventPrefix))
	items, err := t.queryAll(ctx, "", keyCond)
	if err != nil {
		return nil, fmt.Errorf("dynamo: listing assignments of user %s: %w", userID, err)
	}

	events := make([]model.Event, 0, len(items))
	for _, item := range items {
		var a assignmentItem
		if err := attributevalue.UnmarshalMap(item, &a); err != nil {
			return nil, fmt.Errorf("dynamo: unmarshalling assignment: %w", err)
		}
		eventID := strings.TrimPrefix(a.SK, eventPrefix)

		e, err := t.GetEvent(ctx, eventID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			return nil, err
		}
		events = append(events, *e)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Date > events[j].Date })
	return events, nil
}
