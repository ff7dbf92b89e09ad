// Package services implements the driving port interfaces.
// Services contain the core logic of the extension host: the per-process
// supervisor, request correlation, the registry of live extensions and
// search fan-out. They reach processes, files and configuration only
// through driven ports.
package services
