// Package evo defines the data model and error taxonomy shared by every
// service client built on top of this SDK core: the Environment that scopes
// caches and requests, the header multimap used on every outbound call, and
// the access-token shape produced by the auth package.
package evo

import "github.com/google/uuid"

// Environment identifies the scope for cache partitioning and request
// routing. It is immutable and comparable by value.
type Environment struct {
	HubURL      string
	OrgID       uuid.UUID
	WorkspaceID uuid.UUID
}

// Hub is a regional endpoint cluster in the platform's discovery hierarchy.
type Hub struct {
	URL         string
	Code        string
	DisplayName string
}

// Organization groups the hubs a caller's credentials grant access to.
type Organization struct {
	ID          uuid.UUID
	DisplayName string
	Hubs        []Hub
}
