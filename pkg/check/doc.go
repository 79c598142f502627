// Package check is the public face of the permission engine: does user U
// have permission P in organization O.
//
// Checks validate against the static catalog before touching any dependency,
// fetch the effective permission set once per call (cache-first, resolver on
// miss), and test membership per item. Denials carry a reason: "not a
// member" when the user does not belong to the organization, "Insufficient
// permissions" when they do. Infrastructure failures propagate as errors;
// the service never answers granted on a failure path.
package check
