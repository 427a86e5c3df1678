// Package report renders plans and outcomes for people and machines.
//
// RenderPlan and RenderOutcome draw tables for the CI log. WriteFile serializes a
// Document (or a plan) as JSON or YAML, chosen by the file extension, for later steps of
// a workflow to consume.
package report
