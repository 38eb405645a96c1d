package engine

import "time"

// DefaultVerifyTimeout bounds a single verification read.
const DefaultVerifyTimeout = 5 * time.Second

// DefaultMaxConcurrency bounds the calls processed at once in a batch and,
// separately, the verification reads run at once for each call. A batch can
// therefore have up to DefaultMaxConcurrency squared reads in flight.
const DefaultMaxConcurrency = 8

// DefaultCurrency is used in diff previews when the back-end sets none.
const DefaultCurrency = "₽"
