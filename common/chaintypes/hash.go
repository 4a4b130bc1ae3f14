package chaintypes

import "crypto/sha256"

func hashBytes(b []byte) [32]byte {
	return sha256.Sum256(b)
}
