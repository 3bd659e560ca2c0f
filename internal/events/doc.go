// Package events defines the change notifications fbicheck publishes and
// their two wire encodings: a JSON object (the default) and the colon
// separated deposit-log line.
package events
