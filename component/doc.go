// Package component defines the core interfaces for lifecycle-managed
// infrastructure services in gokit.
//
// Components represent services that require initialization, startup,
// shutdown, and health monitoring. They are registered with the bootstrap
// package for automatic lifecycle management.
//
// # Interfaces
//
//   - Component: Core lifecycle and health interface (Name/Start/Stop/Health)
//   - Describable: Bootstrap summary descriptions
//   - RouteProvider: Routes reported in the bootstrap summary
package component
