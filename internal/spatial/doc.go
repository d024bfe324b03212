// Package spatial provides the spatial-algebra primitives used by the
// multibody engine:
//
//   - [Vec]: 6-component spatial motion/force vectors (angular part first)
//   - [Transform]: rigid transforms as unit quaternion + translation
//   - [RigidBodyInertia]: 6x6 spatial inertia of a rigid body about a point
//
// All quantities are expressed in world-aligned axes. Motion vectors pair an
// angular velocity (or acceleration) with the linear velocity (or classical
// acceleration) of a body-fixed point; force vectors pair a torque about that
// point with a linear force.
package spatial
