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
	"github.com/go-otp-auth/internal/domain"
)

// API is the subset of the DynamoDB client the account store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// AccountRepo stores accounts in a table keyed by normalized email.
// Every state transition is a single conditional write, so concurrent
// requests for one email serialize inside DynamoDB.
type AccountRepo struct {
	client    API
	tableName string
}

func NewAccountRepo(client API, tableName string) *AccountRepo {
	return &AccountRepo{client: client, tableName: tableName}
}

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account %s: %w", email, domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &a, nil
}

// InsertPending writes a only if no account exists for its email.
func (r *AccountRepo) InsertPending(ctx context.Context, a *domain.Account) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldEmail},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("insert account %s: %w", a.Email, domain.ErrDuplicateAccount)
	}
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// ReplaceChallenge overwrites the challenge of a pending account. The
// previous code stops verifying the moment this write lands. A non-zero
// purgeAt moves the item's TTL forward.
func (r *AccountRepo) ReplaceChallenge(ctx context.Context, email string, ch domain.Challenge, purgeAt int64) error {
	updates := map[string]any{
		fieldChallenge: ch,
		fieldUpdatedAt: ch.IssuedAt.UTC(),
	}
	if purgeAt > 0 {
		updates[fieldPurgeAt] = purgeAt
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue = ue.with(
		map[string]string{"#pk": fieldEmail, "#ver": fieldVerified},
		map[string]types.AttributeValue{":false": &types.AttributeValueMemberBOOL{Value: false}},
	)
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 strKey(fieldEmail, email),
		UpdateExpression:                    aws.String(ue.Expr),
		ConditionExpression:                 aws.String("attribute_exists(#pk) AND #ver = :false"),
		ExpressionAttributeNames:            ue.Names,
		ExpressionAttributeValues:           ue.Values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}
	old, ok, uerr := conditionItem(err)
	if !ok {
		return fmt.Errorf("replace challenge: %w", err)
	}
	if uerr != nil {
		return uerr
	}
	if old != nil && old.Verified {
		return fmt.Errorf("replace challenge %s: %w", email, domain.ErrAlreadyVerified)
	}
	return fmt.Errorf("replace challenge %s: %w", email, domain.ErrNotFound)
}

// ConsumeAttempt decrements the attempt budget of the challenge identified by
// codeHash and returns what is left. It fails when the challenge has been
// replaced, the account verified, or the budget is already spent.
func (r *AccountRepo) ConsumeAttempt(ctx context.Context, email, codeHash string) (int, error) {
	updatedAt, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("marshal updated_at: %w", err)
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldEmail, email),
		UpdateExpression:    aws.String("SET #ch.#att = #ch.#att - :one, #upd = :upd"),
		ConditionExpression: aws.String("#ver = :false AND #ch.#hash = :hash AND #ch.#att > :zero"),
		ExpressionAttributeNames: map[string]string{
			"#ch":   fieldChallenge,
			"#att":  fieldAttempts,
			"#hash": fieldCodeHash,
			"#ver":  fieldVerified,
			"#upd":  fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   &types.AttributeValueMemberN{Value: "1"},
			":zero":  &types.AttributeValueMemberN{Value: "0"},
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":hash":  &types.AttributeValueMemberS{Value: codeHash},
			":upd":   updatedAt,
		},
		ReturnValues:                        types.ReturnValueUpdatedNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return 0, r.rejected("consume attempt", email, err, codeHash, time.Time{})
	}
	var updated struct {
		Challenge struct {
			AttemptsRemaining int `dynamodbav:"attempts_remaining"`
		} `dynamodbav:"challenge"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return 0, fmt.Errorf("unmarshal attempts: %w", err)
	}
	return updated.Challenge.AttemptsRemaining, nil
}

// Activate marks the account verified and drops its challenge, but only if
// the challenge is still the one identified by codeHash, unexpired at at, and
// has budget left. Of two concurrent activations exactly one succeeds.
func (r *AccountRepo) Activate(ctx context.Context, email, codeHash string, at time.Time) error {
	at = at.UTC()
	ue, err := buildUpdateExpr(map[string]any{
		fieldVerified:   true,
		fieldVerifiedAt: at,
		fieldUpdatedAt:  at,
	})
	if err != nil {
		return err
	}
	ue = ue.with(
		map[string]string{
			"#ch":    fieldChallenge,
			"#hash":  fieldCodeHash,
			"#exp":   fieldExpiresAt,
			"#att":   fieldAttempts,
			"#ver":   fieldVerified,
			"#purge": fieldPurgeAt,
		},
		map[string]types.AttributeValue{
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":hash":  &types.AttributeValueMemberS{Value: codeHash},
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(at.Unix(), 10)},
			":zero":  &types.AttributeValueMemberN{Value: "0"},
		},
	)
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 strKey(fieldEmail, email),
		UpdateExpression:                    aws.String(ue.Expr + " REMOVE #ch, #purge"),
		ConditionExpression:                 aws.String("#ver = :false AND #ch.#hash = :hash AND #ch.#exp >= :now AND #ch.#att > :zero"),
		ExpressionAttributeNames:            ue.Names,
		ExpressionAttributeValues:           ue.Values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return r.rejected("activate", email, err, codeHash, at)
	}
	return nil
}

// rejected turns a failed conditional write into the domain outcome that
// the stored item explains, or passes other errors through.
func (r *AccountRepo) rejected(op, email string, err error, codeHash string, at time.Time) error {
	old, ok, uerr := conditionItem(err)
	if !ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	if uerr != nil {
		return uerr
	}
	reason := domain.RejectReason(old, codeHash, at)
	if reason == nil {
		// item changed between the failed write and the returned image
		reason = domain.ErrInvalidCode
	}
	return fmt.Errorf("%s %s: %w", op, email, reason)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// conditionItem extracts the ALL_OLD image from a conditional check failure.
// ok is false when err is not a conditional check failure. A nil account
// with ok true means the item did not exist.
func conditionItem(err error) (old *domain.Account, ok bool, uerr error) {
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return nil, false, nil
	}
	if len(ccf.Item) == 0 {
		return nil, true, nil
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(ccf.Item, &a); err != nil {
		return nil, true, fmt.Errorf("unmarshal rejected item: %w", err)
	}
	return &a, true, nil
}
