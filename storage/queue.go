package storage

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"rootcart/domain"
)

// EventQueue exports order events to an Azure Storage queue for downstream consumers.
type EventQueue struct {
	queue *azqueue.QueueClient
}

func NewEventQueue(connStr, queueName string) (*EventQueue, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, queueOptions())
	if err != nil {
		return nil, err
	}
	return &EventQueue{queue: q}, nil
}

func (q *EventQueue) Export(ctx context.Context, rec domain.OrderEventRecord) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
