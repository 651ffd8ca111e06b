/*
Package hedag implements the mid-end of a homomorphic-encryption
compiler: a DAG intermediate representation, the rewriting passes that
prepare a program for an HE backend, scheme/parameter selection, and a
scheme-parametric executor that drives one of several backend
libraries (two CKKS implementations, two BFV implementations, one
TFHE-like small-integer library) to encrypt, evaluate and decrypt.

See package dag for the IR, package dag/passes for the transpile
pipeline, package params for parameter selection, package scheme for
the backend dispatcher, package exec for the executor, package
serialize for the wire schema, and package session for the
programmatic entry points.
*/
package hedag
