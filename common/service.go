// common/service.go
package common

import (
	"github.com/YaganovValera/feed-bridge/common/backoff"
	producer "github.com/YaganovValera/feed-bridge/common/kafka/producer"
)

// ServiceNameKey is the metric label carrying the service name.
const ServiceNameKey = "service"

// InitServiceName sets the service label of shared metrics. Call it from
// main before any retries or publishes.
func InitServiceName(name string) {
	backoff.SetServiceLabel(name)
	producer.SetServiceLabel(name)
}
