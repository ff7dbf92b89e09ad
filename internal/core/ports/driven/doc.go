// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - ProcessSpawner: Starts an extension process and returns its ProcessChannel
//   - ProcessChannel: Ordered message pipe to one extension process
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - ProcessRecordStore: Pid bookkeeping. Without it orphans of a crashed host are not reaped.
//   - ProcessInspector: Inspects and kills recorded pids. Required by the reaper only.
//   - ModuleWatcher: Reports changed extension modules. Without it modules are not hot reloaded.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
