package mainchain

import "errors"

var (
	errInvalidHash          = errors.New("mainchain: empty hash or hash equals previous-hash")
	errUnexpectedLoose      = errors.New("mainchain: parent missing during loose resolution")
	errBlockNumberGap       = errors.New("mainchain: block number is not previous+1")
	errDuplicateTransaction = errors.New("mainchain: duplicate transaction-layout digest on this chain")
)
