// Package core provides the business logic for TOPSIS ranking requests.
//
// This package holds all domain logic independent of the HTTP layer. Web
// handlers, tests and any future CLI drive it through [Service.Calculate].
//
// # Pipeline
//
// A calculation runs synchronously, in order:
//
//  1. [ParseDataset] reads the upload (BOM stripped, invalid UTF-8 repaired)
//  2. [Validate] checks the four structural rules and stops at the first failure
//  3. [ParseWeights] and [ParseImpacts] turn the parameter strings into values
//  4. [Rank] computes the closeness coefficient and rank of every row
//  5. [WriteResult] serializes the annotated table into a per-request artifact
//  6. The artifact is mailed to the requester as result.csv
//
// Steps 1 to 4 abort the request with an [InputError]. A failed delivery in
// step 6 is soft: the calculation is reported complete and the delivery kind
// is carried on the [CalculationOutcome].
//
// # Concurrency
//
// [CalculationLimiter] bounds the number of calculations in flight. The
// [Janitor] removes expired artifacts in the background.
//
// # Error Handling
//
// Errors are mapped to user-facing codes using [MapError]:
//
//   - VAL001-VAL005: Validation errors (columns, counts, impacts, weights)
//   - FILE001-FILE004: File errors (size, format, missing upload or field)
//   - MAIL001-MAIL005: Delivery errors, one per mail.Kind
//   - CALC001-CALC002: Capacity and cancellation
package core
