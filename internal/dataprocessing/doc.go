// Package dataprocessing loads the BMI prevalence datasets and aggregates them
// into the summary tables drawn by the dashboard.
//
// # Architecture
//
// The package has two halves:
//
// 1. Loading: ParseCSV, ParseXLSX and LoadFile read a dataset source and
// report malformed rows through LoadStats instead of failing the load.
// Loader.LoadAll reads the three sources concurrently.
//
// 2. Aggregation: Compute filters a dataset by sex and income group, averages
// Prevalence per (income group, year) and orders the rows by year. It is a
// pure function and is safe to call from any number of goroutines.
//
// # Usage
//
//	ds, stats, err := dataprocessing.LoadFile("data/dataset_mean.csv", domain.DatasetMean, dataprocessing.ParseOptions{})
//	if err != nil {
//	    return err
//	}
//	table, err := dataprocessing.Compute(ds, domain.SexMale, domain.DefaultIncomeGroups())
//
// # Data Flow
//
//	CSV/XLSX → Parser → Dataset → Pipeline(Selection) → SummaryTable → charts / exporter / websocket
//
// # Error Handling
//
//   - A missing header column fails the load with ErrMissingColumn
//   - Rows with a bad Sex, TimeDim or Prevalence are skipped and counted
//   - An unrecognized sex passed to Compute returns domain.ErrInvalidFilterValue
//   - An empty match is an empty table, never an error
package dataprocessing
