// Package shared holds code used across the dashboard's packages that belongs
// to no single layer.
//
// The testutil subpackage provides:
//
//   - A buffered slog handler for asserting on log output
//   - Dataset fixtures written as CSV into a test's temp directory
//
// Example usage:
//
//	func TestLoad(t *testing.T) {
//	    logger, logs := testutil.NewTestLogger(t)
//	    path := testutil.WriteDatasetCSV(t, testutil.SampleRecords())
//	    ...
//	    testutil.AssertNoErrors(t, logs)
//	}
package shared
