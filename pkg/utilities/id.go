package utilities

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewRequestID generates a KSUID string used to tag a single HTTP request
// across log lines.
func NewRequestID() string {
	return ksuid.New().String()
}

// NewRecordID generates a snowflake ID using the node ID from the
// SNOWFLAKE_NODE environment variable, defaulting to node 1. Used as the
// primary key for transaction-log rows.
func NewRecordID() int64 {
	nodeID := int64(1)
	if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	return NewRecordIDWithNode(nodeID)
}

// NewRecordIDWithNode generates a snowflake ID using the provided node ID.
// A node that cannot be initialized falls back to node 1.
func NewRecordIDWithNode(nodeID int64) int64 {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		node, _ = snowflake.NewNode(1)
	}
	return node.Generate().Int64()
}
