package clients

import (
	"context"

	"arrears-recon/internal/domain"
	ws "arrears-recon/internal/transport/websocket"
)

const (
	ChannelIngest = "ingest"
	ChannelExport = "export"
)

// IngestProgress is pushed after every document of a batch.
type IngestProgress struct {
	Index    int                  `json:"index"`
	Total    int                  `json:"total"`
	FileName string               `json:"fileName"`
	Status   domain.ProcessStatus `json:"status"`
	Message  string               `json:"message,omitempty"`
	Rows     int                  `json:"rows"`
}

type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

func (c *WebSocketClient) NotifyIngestProgress(ctx context.Context, p IngestProgress) error {
	if c == nil || c.hub == nil {
		return nil
	}

	c.hub.Broadcast(&ws.Message{
		Type:    "ingest_progress",
		Channel: ChannelIngest,
		Data:    p,
	})
	return nil
}

// NotifyLogUpdate pushes a single process-log row whenever its status moves.
func (c *WebSocketClient) NotifyLogUpdate(ctx context.Context, entry domain.ProcessLog) error {
	if c == nil || c.hub == nil {
		return nil
	}

	c.hub.Broadcast(&ws.Message{
		Type:    "log_update",
		Channel: ChannelIngest,
		Data:    entry,
	})
	return nil
}

func (c *WebSocketClient) NotifyExportComplete(ctx context.Context, exportID, url, filename string) error {
	if c == nil || c.hub == nil {
		return nil
	}

	c.hub.Broadcast(&ws.Message{
		Type:    "export_complete",
		Channel: ChannelExport,
		Data: map[string]interface{}{
			"id":       exportID,
			"url":      url,
			"filename": filename,
		},
	})
	return nil
}

// NotifyExportFailed notifies listeners that an export failed with the provided error message.
func (c *WebSocketClient) NotifyExportFailed(ctx context.Context, exportID, errMsg string) error {
	if c == nil || c.hub == nil {
		return nil
	}

	c.hub.Broadcast(&ws.Message{
		Type:    "export_failed",
		Channel: ChannelExport,
		Data: map[string]interface{}{
			"id":      exportID,
			"message": errMsg,
		},
	})
	return nil
}
