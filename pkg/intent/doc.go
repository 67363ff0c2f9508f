// Package intent provides the default keyword-rule IntentDetector.
package intent
