package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ride-identity/internal/domain"
)

// CodeRepo manages one-time codes.
// PK: subject_id, SK: purpose. GSI destination-index on destination.
type CodeRepo struct {
	client    API
	tableName string
	observe   func(error) error
}

func NewCodeRepo(client API, tableName string) *CodeRepo {
	return &CodeRepo{client: client, tableName: tableName, observe: func(err error) error { return err }}
}

func (r *CodeRepo) key(subjectID string, purpose domain.Purpose) map[string]types.AttributeValue {
	return compositeKey(fieldSubjectID, subjectID, fieldPurpose, string(purpose))
}

func (r *CodeRepo) Put(ctx context.Context, c *domain.OneTimeCode) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return r.observe(err)
}

func (r *CodeRepo) Get(ctx context.Context, subjectID string, purpose domain.Purpose) (*domain.OneTimeCode, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            r.key(subjectID, purpose),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, r.observe(err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	var c domain.OneTimeCode
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// RecordAttempt increments attempts atomically. The condition pins the
// record to codeID so a concurrent re-issue is never charged.
func (r *CodeRepo) RecordAttempt(ctx context.Context, subjectID string, purpose domain.Purpose, codeID string, max int) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 r.key(subjectID, purpose),
		UpdateExpression:    aws.String("SET #a = #a + :one"),
		ConditionExpression: aws.String("#c = :cid AND #a < :max"),
		ExpressionAttributeNames: map[string]string{
			"#a": fieldAttempts,
			"#c": fieldCodeID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":cid": &types.AttributeValueMemberS{Value: codeID},
			":max": &types.AttributeValueMemberN{Value: strconv.Itoa(max)},
		},
		ReturnValues:                        types.ReturnValueUpdatedNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return 0, r.observe(err)
		}
		var old domain.OneTimeCode
		if ccf.Item == nil || attributevalue.UnmarshalMap(ccf.Item, &old) != nil || old.CodeID != codeID {
			return 0, fmt.Errorf("code not found: %w", domain.ErrNotFound)
		}
		return old.Attempts, domain.ErrAttemptsExhausted
	}
	var updated struct {
		Attempts int `dynamodbav:"attempts"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return 0, fmt.Errorf("unmarshal attempts: %w", err)
	}
	return updated.Attempts, nil
}

func (r *CodeRepo) MarkUsed(ctx context.Context, subjectID string, purpose domain.Purpose, codeID string) error {
	return r.update(ctx, subjectID, purpose, codeID, map[string]interface{}{fieldIsUsed: true})
}

func (r *CodeRepo) SetDeliveryStatus(ctx context.Context, subjectID string, purpose domain.Purpose, codeID, status string) error {
	return r.update(ctx, subjectID, purpose, codeID, map[string]interface{}{fieldDeliveryStatus: status})
}

func (r *CodeRepo) update(ctx context.Context, subjectID string, purpose domain.Purpose, codeID string, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Names["#cid"] = fieldCodeID
	ue.Values[":cid"] = &types.AttributeValueMemberS{Value: codeID}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       r.key(subjectID, purpose),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#cid = :cid"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	return r.observe(err)
}

func (r *CodeRepo) FindByDestination(ctx context.Context, destination string) ([]domain.OneTimeCode, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexDestination),
		KeyConditionExpression: aws.String("#d = :d"),
		ExpressionAttributeNames: map[string]string{
			"#d": fieldDestination,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberS{Value: destination},
		},
	})
	if err != nil {
		return nil, r.observe(err)
	}
	var codes []domain.OneTimeCode
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// DeleteExpired removes records whose expires_at has passed. DynamoDB TTL
// does the same eventually; this keeps the table tidy between TTL sweeps.
func (r *CodeRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:            aws.String(r.tableName),
		FilterExpression:     aws.String("#e <= :now"),
		ProjectionExpression: aws.String("#s, #p"),
		ExpressionAttributeNames: map[string]string{
			"#e": fieldExpiresAt,
			"#s": fieldSubjectID,
			"#p": fieldPurpose,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	deleted := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return deleted, r.observe(err)
		}
		for _, item := range page.Items {
			_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(r.tableName),
				Key: map[string]types.AttributeValue{
					fieldSubjectID: item[fieldSubjectID],
					fieldPurpose:   item[fieldPurpose],
				},
			})
			if err != nil {
				return deleted, r.observe(err)
			}
			deleted++
		}
	}
	return deleted, nil
}
