package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"rootcart/domain"
)

// StatusHistory appends order status transitions to an Azure table, one
// partition per order.
type StatusHistory struct {
	table *aztables.Client
}

func NewStatusHistory(connStr, tableName string) (*StatusHistory, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, tablesOptions())
	if err != nil {
		return nil, err
	}
	return &StatusHistory{table: svc.NewClient(tableName)}, nil
}

type statusEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Previous     string `json:"Previous"`
	New          string `json:"New"`
	ChangedBy    string `json:"ChangedBy"`
	ChangedAt    int64  `json:"ChangedAt"`
}

// rowKey sorts lexically in time order.
func rowKey(t time.Time) string {
	return fmt.Sprintf("%019d", t.UnixNano())
}

func encodeStatusChange(ch domain.StatusChange) ([]byte, error) {
	return sonic.Marshal(statusEntity{
		PartitionKey: ch.OrderID,
		RowKey:       rowKey(ch.ChangedAt),
		Previous:     string(ch.Previous),
		New:          string(ch.New),
		ChangedBy:    ch.ChangedBy,
		ChangedAt:    ch.ChangedAt.UnixNano(),
	})
}

func decodeStatusChange(data []byte) (domain.StatusChange, error) {
	var ent statusEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.StatusChange{}, err
	}
	return domain.StatusChange{
		OrderID:   ent.PartitionKey,
		Previous:  domain.OrderStatus(ent.Previous),
		New:       domain.OrderStatus(ent.New),
		ChangedBy: ent.ChangedBy,
		ChangedAt: time.Unix(0, ent.ChangedAt).UTC(),
	}, nil
}

func (h *StatusHistory) Append(ctx context.Context, ch domain.StatusChange) error {
	payload, err := encodeStatusChange(ch)
	if err != nil {
		return err
	}
	_, err = h.table.AddEntity(ctx, payload, nil)
	return err
}

// List returns the transitions of one order, oldest first.
func (h *StatusHistory) List(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(orderID, "'", "''") + "'"
	pager := h.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	changes := []domain.StatusChange{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			ch, err := decodeStatusChange(e)
			if err != nil {
				return nil, err
			}
			changes = append(changes, ch)
		}
	}
	return changes, nil
}
