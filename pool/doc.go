// File: pool/doc.go
// Package pool
// Author: momentics <momentics@gmail.com>
//
// NUMA-segmented, size-classed packet buffer pooling (L1 of the datapath
// pipeline). Every api.Buffer handed to a port or the pipeline dispatcher
// came from, and must return to, exactly one pool -- the conservation
// invariant the reconciliation path depends on. Linux is the only
// supported buffer backend; other platforms get a flat, non-NUMA pool.
package pool
