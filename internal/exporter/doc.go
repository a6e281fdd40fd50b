// Package exporter writes summary tables for download.
//
// CSVWriter produces one long-format table per dataset with a UTF-8 BOM so
// spreadsheet tools detect the encoding. WorkbookExporter produces a single
// xlsx file with a sheet per dataset, pivoted by year, and a native line
// chart mirroring the dashboard.
package exporter
