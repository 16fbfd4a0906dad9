// Package config loads the task and agent configuration YAML files
// (spec.md section 6's CLI, "--task-config PATH, --agent-config PATH")
// and optionally watches them for changes.
package config
