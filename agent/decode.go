package agent

import "strings"

// The router and reflection stages speak a marker protocol embedded in
// free-form model text. The decoders below tolerate prose around the markers
// and fall back gracefully when a model phrases its decision loosely.

const (
	markerAnalyticsTrue  = "analytics_query: true"
	markerAnalyticsFalse = "analytics_query: false"
	markerDecisionPass   = "DECISION: PASS"
	markerDecisionRetry  = "DECISION: RETRY"
)

// DecodeRoute inspects a router response for the analytics marker. Absence
// of the true-marker means general conversation; the text preceding the
// false-marker (or the whole response when the marker is missing) becomes
// the conversational reply.
func DecodeRoute(content string) (requiresAnalytics bool, generalResponse string) {
	lowered := strings.ToLower(content)
	if strings.Contains(lowered, markerAnalyticsTrue) {
		return true, ""
	}

	generalResponse = content
	if tagIndex := strings.Index(lowered, markerAnalyticsFalse); tagIndex > 0 {
		generalResponse = content[:tagIndex]
	}
	return false, strings.TrimSpace(generalResponse)
}

// DecodeReflection parses the reviewer's verdict. A response starting with
// "DECISION: PASS" (case-folded, untrimmed) passes. Anything else is a retry;
// the feedback is the text after the exact retry marker when present, otherwise
// the entire response, since models sometimes state a retry without the marker.
func DecodeReflection(content string) (ReflectionDecision, string) {
	if strings.HasPrefix(strings.ToUpper(content), markerDecisionPass) {
		return DecisionPass, ""
	}

	if markerIndex := strings.Index(content, markerDecisionRetry); markerIndex >= 0 {
		return DecisionRetry, strings.TrimSpace(content[markerIndex+len(markerDecisionRetry):])
	}
	return DecisionRetry, content
}
