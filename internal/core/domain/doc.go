// Package domain defines the core business entities for the Sercha extension host.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ExtensionID: Names an extension module
//   - ExtensionState: NotReady, Ready or Terminated
//   - Message: The envelope exchanged with an extension process
//   - Operation: A typed request/response pairing (getSources, search)
//   - ExtensionSettings: How extension processes are located and spawned
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
