// Package kinfit implements the constrained kinematic fit and the pool of
// reusable fit engines, one per emitted-quanta multiplicity.
//
// A Fitter solves the least-squares problem for the reaction
//
//	γ(beam) + target → recoil + N quanta
//
// subject to four-momentum conservation, using Lagrange multipliers and
// iterated linearisation of the constraints. Measured variables are the
// beam energy and each particle's (Ek, θ, φ); the recoil kinetic energy is
// unmeasured by default. An optional vertex-z variable shifts the polar
// angles of clusters according to the calorimeter geometry.
//
// Engines are stateful and reused. The only entry point is Evaluate, which
// overwrites every input of the previous trial before solving, so callers
// never need to reset an engine.
package kinfit
