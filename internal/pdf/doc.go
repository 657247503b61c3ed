// Package pdf turns captured pages into per-page PDF documents and merges
// them into one indexed, headered document.
//
// Drawing uses gofpdf with point units and a top-left origin. Page import
// goes through gofpdi, and pdfcpu inspects and post-processes the output.
package pdf
