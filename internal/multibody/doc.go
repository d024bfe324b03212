// Package multibody implements a tree-structured rigid-body dynamics engine.
//
// A [Tree] owns a forest of body-plus-joint [Node] units grouped by level
// (distance from the ground node). Clients build the topology once
// (AddGroundNode, AddRigidBodyNode, AddDistanceConstraint,
// RealizeConstruction) and then drive it repeatedly through a staged
// realization pipeline:
//
//	Modeling -> Parameters -> Configuration -> Velocity ->
//	(constraint enforcement) -> dynamics -> retrieval
//
// Configuration and velocity sweep base to tip: a child's world transform
// and spatial velocity are defined relative to its parent's already-updated
// ones. Forward dynamics uses the O(n) Articulated Body Algorithm: CalcP and
// CalcZ sweep tip to base, CalcTreeAccel sweeps base to tip. Loop-closure
// distance constraints between [Station] points are resolved by an injected
// [Solver] collaborator through a single corrective force pass.
//
// Nothing here is safe for concurrent use: each call assumes exclusive
// access to the tree and to the [State] it is handed.
package multibody
