// Package integration contains the Integration bounded context.
// This context describes how the capture engine reaches the external
// commerce platform.
//
// Key concepts:
//   - CommerceSource: Port interface for fetching orders and customer profiles
//   - ErrorKind: Classification of platform failures so callers can branch
//     without inspecting HTTP status codes
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
