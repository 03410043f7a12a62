package sync

import "path/filepath"

// SyncContext holds the configuration shared by the client and the agent of one connector.
// It must not be modified after the agent is created.
type SyncContext struct {
	Settings ConnectorSettings
	// Connector identifies the connector instance in logs and recordings.
	Connector      string
	BaseURL        string
	RecordRequests bool
}

// RecordingPath is where recorded exchanges are stored when RecordRequests is set.
func (sc SyncContext) RecordingPath() string {
	connector := sc.Connector
	if connector == "" {
		connector = "default"
	}
	return filepath.Join("testdata", ".requests", connector)
}

// ClientOptions returns the client options implied by the context.
func (sc SyncContext) ClientOptions() []ClientOption {
	var opts []ClientOption
	if sc.BaseURL != "" {
		opts = append(opts, WithBaseURL(sc.BaseURL))
	}
	if sc.RecordRequests {
		opts = append(opts, WithRecording(sc.RecordingPath()))
	}
	return opts
}
