package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// ErrRetryable marks a handler failure that should be redelivered. Handlers
// wrap transient upstream errors with it; anything else is acknowledged to
// prevent poison-pill loops.
var ErrRetryable = errors.New("retryable failure")

// SQSClient is the subset of the SQS API the queue layer uses.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Publisher publishes shard messages to a provider queue.
type Publisher interface {
	Publish(ctx context.Context, queueURL string, msg ShardMessage) error
}

// SQSPublisher implements Publisher on SQS.
type SQSPublisher struct {
	client SQSClient
}

func NewSQSPublisher(client SQSClient) *SQSPublisher {
	return &SQSPublisher{client: client}
}

func (p *SQSPublisher) Publish(ctx context.Context, queueURL string, msg ShardMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode shard message: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send shard message: %w", err)
	}
	return nil
}

// Handler processes one shard message. Returning an error wrapping
// ErrRetryable leaves the message on the queue for redelivery; any other
// outcome acknowledges it.
type Handler func(ctx context.Context, msg ShardMessage) error

// Consumer drains one provider queue. Each consumer goroutine processes
// messages sequentially; Parallelism controls how many run side by side.
type Consumer struct {
	client      SQSClient
	queueURL    string
	waitTime    int32
	parallelism int
}

func NewConsumer(client SQSClient, queueURL string, waitTime int32, parallelism int) *Consumer {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Consumer{
		client:      client,
		queueURL:    queueURL,
		waitTime:    waitTime,
		parallelism: parallelism,
	}
}

// Run blocks until ctx is cancelled, draining the queue with the handler.
// In-flight messages finish before Run returns; no new messages are taken
// after cancellation.
func (c *Consumer) Run(ctx context.Context, handler Handler) {
	done := make(chan struct{})
	for i := 0; i < c.parallelism; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			c.consumeLoop(ctx, handler)
		}()
	}
	for i := 0; i < c.parallelism; i++ {
		<-done
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     c.waitTime,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("receive messages", "queue", c.queueURL, "error", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, raw := range out.Messages {
			var msg ShardMessage
			if err := json.Unmarshal([]byte(aws.ToString(raw.Body)), &msg); err != nil {
				slog.Error("unmarshal shard message", "error", err)
				c.ack(ctx, raw.ReceiptHandle)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				if errors.Is(err, ErrRetryable) {
					slog.Warn("shard requeued", "batch_number", msg.BatchNumber, "error", err)
					c.nack(ctx, raw.ReceiptHandle)
					continue
				}
				slog.Error("shard failed", "batch_number", msg.BatchNumber, "error", err)
			}
			c.ack(ctx, raw.ReceiptHandle)
		}
	}
}

func (c *Consumer) ack(ctx context.Context, receipt *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receipt,
	})
	if err != nil {
		slog.Error("delete message", "queue", c.queueURL, "error", err)
	}
}

// nack makes the message visible again immediately instead of waiting out
// the visibility timeout.
func (c *Consumer) nack(ctx context.Context, receipt *string) {
	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     receipt,
		VisibilityTimeout: 0,
	})
	if err != nil {
		slog.Error("change message visibility", "queue", c.queueURL, "error", err)
	}
}

var _ Publisher = (*SQSPublisher)(nil)
