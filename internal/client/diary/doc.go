// Package diary keeps the locally held diary day consistent with the service
// under optimistic mutation.
//
// The Store holds the last authoritative snapshot (the base) plus a list of
// optimistic overlays, one per unreconciled mutation. Readers get the base
// with the overlays replayed on top and totals recomputed from the visible
// entries. Every mutation ends with a full refetch of the viewed day; each
// fetch carries a sequence number and a result older than the applied base,
// or for a day no longer viewed, is dropped. An overlay is dropped once a base
// fetched after its mutation settled has been applied.
//
// Mutations run detached from the caller's context and cannot be canceled;
// callers observe them through the returned *Mutation.
package diary
