package mqtt

import (
	"fmt"
	"strings"
)

// Topic constants for the query request/reply exchange
const (
	// Query requests (input)
	TopicQueryRequest = "energytwins/query/request"

	// Query responses (output), one topic per request ID
	TopicQueryResponseBase = "energytwins/query/response"
	TopicQueryResponses    = "energytwins/query/response/+"

	// Retained global summary (output)
	TopicSummary = "energytwins/summary"

	// Retained service liveness, one topic per service name
	TopicStatusBase = "energytwins/status"
)

// StatusTopic returns the retained liveness topic of a service
// Pattern: energytwins/status/{service_name}
func StatusTopic(serviceName string) string {
	return fmt.Sprintf("%s/%s", TopicStatusBase, serviceName)
}

// QueryResponseTopic constructs the reply topic for a request
// Pattern: energytwins/query/response/{request_id}
func QueryResponseTopic(requestID string) string {
	return fmt.Sprintf("%s/%s", TopicQueryResponseBase, requestID)
}

// RequestIDFromResponseTopic extracts the request ID from a reply topic
func RequestIDFromResponseTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicQueryResponseBase+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
