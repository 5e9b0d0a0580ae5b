// File: fake/doc.go
// Author: momentics <momentics@gmail.com>

// Package fake collects test doubles for datapath collaborators: a
// canned openflow.TableEngine that isolates pipeline.Dispatcher tests
// from real table-lookup logic, and a trivial api.BufferPool. The
// fake NIC ring role is filled by port.PollModePort and the fake
// controller channel role by pipeline.LoopbackChannel -- both already
// self-contained test doubles elsewhere in this tree, so this package
// only adds what those two do not cover.
package fake
