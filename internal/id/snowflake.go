// Package id generates time-ordered unique ids for goals, raw results, and
// runs via Snowflake, adapted from the teacher's common/id package.
package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID. Must be
// called once at process startup before New is used.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique int64 ID.
func New() int64 {
	return node.Generate().Int64()
}

// NewString generates a new globally unique id rendered as a decimal
// string, the form goals/raw results/runs carry as their stable id.
func NewString() string {
	return strconv.FormatInt(New(), 10)
}

// NewPrefixed generates an id with a short, human-grep-able prefix (e.g.
// "goal_", "raw_", "run_").
func NewPrefixed(prefix string) string {
	return prefix + NewString()
}
