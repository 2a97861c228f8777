// Package hir resolves the raw syntax pack into a hierarchical model of
// crates, modules and items.
//
// Build runs in three phases. Phase one builds a read-only name Table for
// every crate in the pack. Phase two walks each crate's modules in
// parallel, classifies items, computes effective visibility and links
// mirror attributes through the Table. Phase three validates the re-export
// edges of the primary crates.
//
// Re-exports are stored as name-keyed edges and resolved on demand with a
// stack of active lookups, so a cycle is reported instead of recursing
// forever. Nothing in a Pack is mutated after Build returns.
package hir
