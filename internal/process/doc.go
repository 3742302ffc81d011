// Package process supervises a single long-running child process: start with
// redirected output logs, graceful SIGTERM stop with SIGKILL escalation, exit
// observation for crash detection, and readiness polling.
package process
