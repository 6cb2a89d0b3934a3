// Package engine provides the core types and execution model of Homestead.
//
// # Overview
//
// Homestead provisions a machine from declarative manifests. A run has
// three phases:
//
//  1. Load - manifests are decoded into typed actions (see package manifests)
//  2. Resolve - the dependency graph is ordered with ResolveOrder
//  3. Execute - the Driver walks the ordered manifests in dry-run or apply mode
//
// # Core Domain Types
//
//   - Manifest: a named, ordered group of actions with dependencies and local variables
//   - Action: one unit of desired state with DryRun and Run
//   - RunContext: the variables, providers, process runner and logger an action sees
//   - PackageProvider: the contract every package-manager backend implements
//   - Report: the ordered ActionRecords of a run plus its final RunStatus
//
// # Failure Policy
//
// By default a run aborts at the first failed action and reports the
// remaining actions as pending. WithContinueOnError keeps going and reports
// a partial run instead. Either way, Execute returns a *RunError that
// unwraps to every failure so callers can use errors.Is with the sentinel
// errors (ErrInstall, ErrTemplate, ...).
//
// # Resolution
//
// ResolveOrder fails with ErrUnknownDependency or ErrDependencyCycle
// before any action runs. Independent manifests are ordered by name, so the
// same inputs always produce the same order.
package engine
