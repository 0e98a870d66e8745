package instance

import "os"

// GetID identifies this worker process in logs. Deployments set WORKER_ID
// per instance; a lone local process reports the default.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "worker-0"
}
