// Package openflow
// Author: momentics <momentics@gmail.com>
//
// The switch domain model: flow tables, groups, matches, instructions, and
// the logical switch that owns them (spec §3, §4.7). Wire (de)serialization
// and the tree/hash/TCAM matching algorithm itself stay external
// collaborators, reached only through the TableEngine and ControllerChannel
// interfaces in this package -- nothing here speaks the OpenFlow wire
// format.
package openflow
