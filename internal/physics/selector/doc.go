// Package selector picks, for one tagger hit, the assignment of detector
// candidates to a recoil and emitted quanta that best satisfies the
// kinematic fit.
//
// Every rightward rotation of the candidate list designates a different
// candidate as the recoil (the last position). Each rotation is pre-filtered
// on coplanarity and missing mass, survivors are fitted, and the rotation
// with the highest fit probability wins. Ties keep the first rotation seen.
package selector
