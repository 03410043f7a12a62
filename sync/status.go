package sync

import "context"

const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

// ConnectorStatus is the health report shown to operators.
type ConnectorStatus struct {
	Status   string   `json:"status"`
	Messages []string `json:"messages"`
}

func (s *ConnectorStatus) add(level string, msg OperationMessage) {
	s.Messages = append(s.Messages, msg.Message)
	if level == StatusError || s.Status == StatusOK {
		s.Status = level
	}
}

// StatusCheck reports configuration problems. Authentication is only checked
// when an API key is configured.
func (a *SyncAgent) StatusCheck(ctx context.Context) ConnectorStatus {
	status := ConnectorStatus{Status: StatusOK, Messages: []string{}}
	switch {
	case !a.client.HasValidAPIKey():
		status.add(StatusError, MessageStatusNoAPIKey)
	case !a.client.IsAuthenticated(ctx):
		status.add(StatusError, MessageStatusNotAuthenticated)
	}
	if len(a.sc.Settings.SynchronizedSegments) == 0 {
		status.add(StatusWarning, MessageStatusNoSegments)
	}
	return status
}
