// Package sqsqueue implements queue.Queue against Amazon SQS, grounded on
// the aws-sdk-go-v2 family already present in the pack (Bidon15-popsigner's
// go.mod carries aws-sdk-go-v2/config and service/s3) — generalized from S3
// object storage to an SQS work queue, the natural "hosted queue" transport
// for this engine alongside the self-hosted memqueue and redisqueue.
package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/queue"
)

// Queue implements queue.Queue against a single SQS queue URL. Delay and
// visibility-timeout semantics are SQS-native: VisibilityTimeout on
// ReceiveMessage, DelaySeconds on SendMessage.
type Queue struct {
	client            *sqs.Client
	queueURL          string
	visibilityTimeout int32
}

// New loads the default AWS config chain (matching awsconfig.LoadDefaultConfig
// used across the pack's S3/SQS-adjacent clients) and returns a Queue bound
// to queueURL.
func New(ctx context.Context, queueURL string, visibilityTimeoutSeconds int32) (*Queue, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqsqueue: load aws config: %w", err)
	}
	if visibilityTimeoutSeconds <= 0 {
		visibilityTimeoutSeconds = 30
	}
	return &Queue{
		client:            sqs.NewFromConfig(cfg),
		queueURL:          queueURL,
		visibilityTimeout: visibilityTimeoutSeconds,
	}, nil
}

func (q *Queue) Push(ctx context.Context, msg message.Message) error {
	return q.PushDelay(ctx, msg, 0)
}

func (q *Queue) PushDelay(ctx context.Context, msg message.Message, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	delaySeconds := int32(delay.Seconds())
	if delaySeconds > 900 {
		delaySeconds = 900 // SQS hard cap
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     &q.queueURL,
		MessageBody:  strPtr(string(body)),
		DelaySeconds: delaySeconds,
	})
	return err
}

func (q *Queue) Poll(ctx context.Context) (queue.Delivery, bool, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &q.queueURL,
		MaxNumberOfMessages: 1,
		VisibilityTimeout:   q.visibilityTimeout,
		WaitTimeSeconds:     1,
	})
	if err != nil {
		return queue.Delivery{}, false, err
	}
	if len(out.Messages) == 0 {
		return queue.Delivery{}, false, nil
	}
	m := out.Messages[0]
	var msg message.Message
	if err := json.Unmarshal([]byte(*m.Body), &msg); err != nil {
		return queue.Delivery{}, false, err
	}
	return queue.Delivery{Message: msg, Token: *m.ReceiptHandle}, true, nil
}

func (q *Queue) Ack(ctx context.Context, tok queue.AckToken) error {
	handle, ok := tok.(string)
	if !ok {
		return nil
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.queueURL,
		ReceiptHandle: &handle,
	})
	return err
}

func (q *Queue) Nack(ctx context.Context, tok queue.AckToken) error {
	handle, ok := tok.(string)
	if !ok {
		return nil
	}
	var zero int32
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &q.queueURL,
		ReceiptHandle:     &handle,
		VisibilityTimeout: zero,
	})
	return err
}

func (q *Queue) Close() error { return nil }

func strPtr(s string) *string { return &s }
