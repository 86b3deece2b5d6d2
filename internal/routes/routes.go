package routes

const (
	// Health
	Health = "/health"

	// Scan endpoints
	ScansStart  = "/api/v1/scans/start"
	ScansFinish = "/api/v1/scans/finish"
)
