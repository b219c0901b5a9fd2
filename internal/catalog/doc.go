// Package catalog manages resource type definitions, their allocation
// constraints, and the ability-based permission model. Types are persisted
// as keyed state records in the owning organization's room; standalone
// policies scoped to a type layer extra constraints on top of it.
package catalog
