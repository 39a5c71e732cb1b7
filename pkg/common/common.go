package common

import (
	"math/rand"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var snowflakeNode *snowflake.Node

func init() {
	var err error
	snowflakeNode, err = snowflake.NewNode(rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(1023))
	if err != nil {
		panic(err)
	}
}

// UUIDint64 returns a process-unique int64 identifier.
func UUIDint64() int64 {
	return snowflakeNode.Generate().Int64()
}

// UUID returns a process-unique identifier string.
func UUID() string {
	return snowflakeNode.Generate().String()
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MakeDir creates dir if missing.
func MakeDir(path string) error {
	if FileExists(path) {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}
