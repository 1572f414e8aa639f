// Package kinematics holds the relativistic building blocks shared by the
// selection core: four-vectors, particle types and closed intervals.
//
// Units follow the detector convention: energies and momenta in MeV,
// angles in radians unless a name says otherwise, lengths in cm.
package kinematics
