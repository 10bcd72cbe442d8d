package instance

import "github.com/mgiraldo-dev/canteen-backend/pkg/env"

// GetID identifies this process among peers sharing the change bus. Set
// INSTANCE_ID per replica; the default suits single-instance deployments.
func GetID() string {
	return env.Get("INSTANCE_ID", "instance-0")
}
