// Package lib is the data model shared by every part of wdrunner: modules and
// their hooks and test cases, sessions and the transport that creates them,
// per-module results and the aggregated run report, and the run settings.
//
// Nothing in here talks to the network or the filesystem; the packages under
// internal/ do that and exchange these types.
package lib
