package models

// Requests and responses for the dashboard read API.

type LogsRequest struct {
	Limit int `query:"limit" json:"limit" default:"11" validate:"gte=1,lte=11"`
}

type SnapshotRequest struct {
	Source string `query:"source" json:"source" default:"live" validate:"oneof=live mirror"`
}

type HealthResponse struct {
	Status    ConnectionStatus `json:"status"`
	Ready     bool             `json:"ready"`
	HasSample bool             `json:"has_snapshot"`
}
