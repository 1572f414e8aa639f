// Package combinatorics enumerates candidate assignments.
//
// Rotation walks the n distinguishable "which element sits last" views of a
// list by rightward single-step rotation, so a search over n candidates costs
// n trials instead of n!. Combination walks k-subsets in lexicographic order.
package combinatorics
