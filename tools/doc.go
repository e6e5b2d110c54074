// Package tools defines the Tool interface and the Registry that advertises
// tools and dispatches calls to them.
//
// Every call through the Registry produces exactly one Envelope, success or
// failure, and exactly one activity log record. Callee errors and panics are
// converted to failure envelopes and never escape the dispatcher.
package tools
