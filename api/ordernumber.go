package api

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// SnowflakeNumbers issues time ordered, instance unique order numbers.
type SnowflakeNumbers struct {
	node *snowflake.Node
}

func NewSnowflakeNumbers(nodeID int64) (*SnowflakeNumbers, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeNumbers{node: node}, nil
}

func (s *SnowflakeNumbers) Next() string {
	return "ORD-" + s.node.Generate().String()
}
