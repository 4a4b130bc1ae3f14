package dkgmgr

import (
	"crypto/cipher"

	"github.com/drand/kyber"
)

// poly is a degree-t polynomial over a kyber scalar field, coefficients
// lowest-degree first. Kept as a thin local type rather than reusing
// kyber/share.PriPoly directly, since the Pedersen scheme needs to commit
// two independently-sampled polynomials under two different generators and
// sum the results coefficient-wise - simplest to do with plain slices.
type poly struct {
	coeffs []kyber.Scalar
}

// samplePoly draws a fresh random degree-t polynomial, forcing its
// constant term to secret when secret is non-nil (used for f, whose
// constant term is this dealer's contribution to the group secret); f'
// is sampled fully at random.
func samplePoly(g kyber.Group, t int, secret kyber.Scalar, rand cipher.Stream) poly {
	coeffs := make([]kyber.Scalar, t+1)
	for k := range coeffs {
		coeffs[k] = g.Scalar().Pick(rand)
	}
	if secret != nil {
		coeffs[0] = secret.Clone()
	}
	return poly{coeffs: coeffs}
}

// eval evaluates the polynomial at x = i (i is a 1-based cabinet index, so
// no party's share ever coincides with the secret at x=0) via Horner's
// method.
func (p poly) eval(g kyber.Group, i int) kyber.Scalar {
	x := g.Scalar().SetInt64(int64(i))
	acc := g.Scalar().Zero()
	for k := len(p.coeffs) - 1; k >= 0; k-- {
		acc = g.Scalar().Mul(acc, x)
		acc = g.Scalar().Add(acc, p.coeffs[k])
	}
	return acc
}

// commit returns base*coeffs[k] for every coefficient, i.e. this
// polynomial's single-generator commitment.
func (p poly) commit(base kyber.Point, g kyber.Group) []kyber.Point {
	out := make([]kyber.Point, len(p.coeffs))
	for k, c := range p.coeffs {
		out[k] = g.Point().Mul(c, base)
	}
	return out
}

// addCommitments sums two equal-length commitment vectors coefficient-wise,
// producing the Pedersen commitments C_k = f_k*G + f'_k*H.
func addCommitments(g kyber.Group, a, b []kyber.Point) []kyber.Point {
	out := make([]kyber.Point, len(a))
	for k := range a {
		out[k] = g.Point().Add(a[k], b[k])
	}
	return out
}

// evalCommitment evaluates a public commitment polynomial at x = i,
// returning sum_k commits[k] * i^k - the verification-key contribution a
// dealer's commitments imply for party i.
func evalCommitment(g kyber.Group, commits []kyber.Point, i int) kyber.Point {
	x := g.Scalar().SetInt64(int64(i))
	xPow := g.Scalar().SetInt64(1)
	acc := g.Point().Null()
	for _, c := range commits {
		acc = g.Point().Add(acc, g.Point().Mul(xPow, c))
		xPow = g.Scalar().Mul(xPow, x)
	}
	return acc
}
