// Package log wraps zerolog with the component/namespace child-logger
// pattern used across the kernel: every long-running loop logs through a
// logger scoped to its component name so log lines can be filtered
// without a separate tagging scheme.
package log
