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

// userItem is the stored shape of a user. The hash lives under "password",
// the attribute name existing records already use.
type userItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI1PK    string `dynamodbav:"GSI1PK"`
	GSI1SK    string `dynamodbav:"GSI1SK"`
	UserID    string `dynamodbav:"userId"`
	Email     string `dynamodbav:"email"`
	Password  string `dynamodbav:"password,omitempty"`
	Role      string `dynamodbav:"role"`
	Provider  string `dynamodbav:"provider,omitempty"`
	Confirmed bool   `dynamodbav:"confirmed"`
	CreatedAt string `dynamodbav:"createdAt"`
}

// emailItem reserves an email address for one user.
type emailItem struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	UserID string `dynamodbav:"userId"`
}

func userKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPrefix + id},
		"SK": &types.AttributeValueMemberS{Value: skProfile},
	}
}

func (it userItem) toModel() *model.User {
	role := model.Role(it.Role)
	if role == "" {
		role = model.RoleUser
	}
	provider := it.Provider
	if provider == "" {
		provider = model.ProviderPassword
	}
	id := it.UserID
	if id == "" {
		id = strings.TrimPrefix(it.PK, userPrefix)
	}
	return &model.User{
		ID:           id,
		Email:        it.Email,
		PasswordHash: it.Password,
		Role:         role,
		Provider:     provider,
		Confirmed:    it.Confirmed,
		CreatedAt:    parseTime(it.CreatedAt),
	}
}

// CreateUser writes the user and its email marker in one transaction. Both
// puts are conditional on their key being new, so two concurrent
// registrations for the same email cannot both succeed.
func (t *Table) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = t.now().UTC()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Provider == "" {
		user.Provider = model.ProviderPassword
	}

	profile, err := attributevalue.MarshalMap(userItem{
		PK:        userPrefix + user.ID,
		SK:        skProfile,
		GSI1PK:    gsiUsers,
		GSI1SK:    user.Email,
		UserID:    user.ID,
		Email:     user.Email,
		Password:  user.PasswordHash,
		Role:      string(user.Role),
		Provider:  user.Provider,
		Confirmed: user.Confirmed,
		CreatedAt: formatTime(user.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("dynamo: marshalling user: %w", err)
	}

	marker, err := attributevalue.MarshalMap(emailItem{
		PK:     emailPrefix + user.Email,
		SK:     skUnique,
		UserID: user.ID,
	})
	if err != nil {
		return fmt.Errorf("dynamo: marshalling email marker: %w", err)
	}

	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return fmt.Errorf("dynamo: building condition: %w", err)
	}

	_, err = t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(t.name),
				Item:                     profile,
				ConditionExpression:      cond.Condition(),
				ExpressionAttributeNames: cond.Names(),
			}},
			{Put: &types.Put{
				TableName:                aws.String(t.name),
				Item:                     marker,
				ConditionExpression:      cond.Condition(),
				ExpressionAttributeNames: cond.Names(),
			}},
		},
	})
	if err != nil {
		if isTransactionConditionFailed(err) {
			return apperror.Conflict("User already exists")
		}
		return fmt.Errorf("dynamo: creating user: %w", err)
	}
	return nil
}

// FindUserByEmail queries GSI1 (GSI1PK=USER, GSI1SK=email).
func (t *Table) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(gsiUsers)).
		And(expression.Key("GSI1SK").Equal(expression.Value(email)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("dynamo: building key condition: %w", err)
	}

	out, err := t.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(t.name),
		IndexName:                 aws.String(IndexGSI1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: querying user by email: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, apperror.NotFound("User")
	}

	var it userItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &it); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshalling user: %w", err)
	}
	return it.toModel(), nil
}

// FindUserByID reads USER#<id>/PROFILE.
func (t *Table) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.name),
		Key:       userKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: getting user %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, apperror.NotFound("User")
	}

	var it userItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshalling user: %w", err)
	}
	return it.toModel(), nil
}
