// Package graph turns a validated pipeline config into a dependency graph and
// orders its stages for emission.
//
// The graph mixes two node kinds. Stage nodes are produced by exactly one
// stage. File nodes are leaves: paths no stage produces, assumed to exist
// before the build starts. An edge runs from each prerequisite to the stage
// that consumes it.
//
// A Graph is immutable once built and safe for concurrent reads. Each
// compilation builds its own.
package graph
