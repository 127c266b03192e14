// Package controlplane defines the boundary to the external resource
// management APIs that provision the notebook environment: the notebook
// service itself (domains, user profiles, lifecycle configs), the network
// fabric (VPCs, subnets, security groups), the project-template catalog, and
// the object store used for user content.
//
// The reconcilers depend only on the interfaces in this package. Production
// wiring supplies SDK-backed implementations; tests use the stateful fake in
// the fake subpackage. Clients are constructed explicitly and passed in,
// never held as package-level singletons.
//
// Error classification is part of the boundary contract: absent resources
// are reported as *NotFoundError and concurrent-mutation rejections as
// *ConflictError. The provider's literal conflict wording is matched in
// exactly one place (IsConflict) so SDK-backed implementations that surface
// raw provider errors still classify correctly.
package controlplane
