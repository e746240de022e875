// Package output drives the physical lines behind each light channel.
//
// Two drivers implement channel.Output:
//   - GPIO drives host pins through periph.io (Raspberry Pi and similar)
//   - Memory keeps levels in memory for development machines and tests
//
// A channel that is asserted is driven high.
package output
