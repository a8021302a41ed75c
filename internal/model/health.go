package model

// HealthOK is the only status the liveness endpoint reports.
const HealthOK = "ok"

// HealthResponse represents the liveness check response.
type HealthResponse struct {
	Status string `json:"status"`
}
