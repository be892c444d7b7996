package logger

import "go.uber.org/zap"

// Field constructors below keep log field names consistent across the
// client, the pipeline executor, steps and tool wrappers. Lines from
// one run grep together by run_id no matter which layer emitted them.

// Run tags a line with the run it belongs to.
func Run(id string) zap.Field { return zap.String("run_id", id) }

// Step tags a line with the pipeline step emitting it.
func Step(name string) zap.Field { return zap.String("step", name) }

// Chain tags a line with a chain identifier.
func Chain(id string) zap.Field { return zap.String("chain", id) }

// Tool tags a line with the external binary being invoked.
func Tool(name string) zap.Field { return zap.String("tool", name) }
