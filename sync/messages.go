package sync

import "fmt"

// Message levels follow the connector log conventions.
const (
	LevelInformation = "Information"
	LevelWarning     = "Warning"
	LevelError       = "Error"
)

// OperationMessage is a catalogued, user-facing explanation attached to skips and status checks.
type OperationMessage struct {
	ID       string
	Message  string
	Level    string
	Channel  string
	Category string
}

func (m OperationMessage) String() string {
	return m.Message
}

var (
	MessageMappingNoOutboundFields = OperationMessage{
		ID:       "MappingNoOutboundFields",
		Message:  "The mapping utility hasn't been initialized with any field mappings.",
		Level:    LevelError,
		Channel:  "Operation",
		Category: "DataTransformation",
	}
	MessageSkipAccountNotMatchingSegments = OperationMessage{
		ID:       "OperationSkipAccountNotMatchingSegments",
		Message:  "The account is not part of any whitelisted segment and won't be synchronized with the service.",
		Level:    LevelInformation,
		Channel:  "Operation",
		Category: "DataFlow",
	}
	MessageSkipAccountNotMatchingSegmentsUser = OperationMessage{
		ID:       "OperationSkipAccountNotMatchingSegmentsUser",
		Message:  "The linked account is not part of any whitelisted segment, the user won't be synchronized as contact.",
		Level:    LevelInformation,
		Channel:  "Operation",
		Category: "DataFlow",
	}
	MessageSkipUserNotLinkedToAccount = OperationMessage{
		ID:       "OperationSkipUserNotLinkedToAccount",
		Message:  "The user is not linked to an account; cannot create a contact without a lead.",
		Level:    LevelInformation,
		Channel:  "Operation",
		Category: "DataFlow",
	}
	MessageStatusNoAPIKey = OperationMessage{
		ID:       "StatusNoApiKeyConfigured",
		Message:  "Cannot communicate with API because no API key is configured.",
		Level:    LevelError,
		Channel:  "Configuration",
		Category: "Authentication",
	}
	MessageStatusNotAuthenticated = OperationMessage{
		ID:       "StatusNotAuthenticated",
		Message:  "The configured API key was rejected by the service.",
		Level:    LevelError,
		Channel:  "Configuration",
		Category: "Authentication",
	}
	MessageStatusNoSegments = OperationMessage{
		ID:       "StatusNoSegmentsWhitelisted",
		Message:  "No data will be sent to the service due to missing segments configuration.",
		Level:    LevelWarning,
		Channel:  "Configuration",
		Category: "DataFlow",
	}
)

// MessageSkipAccountNoIdentifier is the skip reason for accounts without a value for attribute.
func MessageSkipAccountNoIdentifier(attribute string) OperationMessage {
	return OperationMessage{
		ID:       "OperationSkipAccountNoServiceIdentValue",
		Message:  fmt.Sprintf("The account has no value for the unique identifier attribute '%s'", attribute),
		Level:    LevelInformation,
		Channel:  "Operation",
		Category: "DataFlow",
	}
}
