// Package step runs a single model call: it picks Stream or Generate, drives
// the stream assembler and returns the assembled Result. The agent loop
// calls Execute once per step; callers that do not need tools can use it
// directly.
package step
