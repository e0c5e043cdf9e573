package id

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID. Only the first
// call takes effect.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
		if err != nil {
			err = fmt.Errorf("snowflake node %d: %w", nodeID, err)
		}
	})
	return err
}

// NodeIDFor maps an instance name (the stream consumer name) onto the
// Snowflake node range so replicas mint disjoint event ids.
func NodeIDFor(name string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum32()) % (1 << snowflake.NodeBits)
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered and unique across distributed instances.
func New() int64 {
	return node.Generate().Int64()
}
