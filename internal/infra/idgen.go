package infra

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// IDGenerator issues the human-facing business numbers.
type IDGenerator interface {
	TransactionNumber() string
	GatewayReference() string
}

type snowflakeIDs struct {
	node *snowflake.Node
}

func NewIDGenerator(nodeID int64) (IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &snowflakeIDs{node: node}, nil
}

func (g *snowflakeIDs) TransactionNumber() string {
	return "PASS-" + strings.ToUpper(g.node.Generate().Base36())
}

func (g *snowflakeIDs) GatewayReference() string {
	return "GTX-" + g.node.Generate().String()
}
