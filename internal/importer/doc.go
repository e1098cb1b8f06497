// Package importer turns ERP ledger exports into registry entities.
//
// The exports are delimited text with vendor-controlled headers that drift
// between revisions ("OCNIC" vs "CNIC No", "ItemCode" vs "File No"). The
// pipeline is:
//
//  1. [Decode] strips the UTF-8 BOM and repairs the encoding.
//  2. [ParseLine] tokenizes each line with quote-toggle semantics.
//  3. [Resolve] maps the header once to a typed [Schema].
//  4. [ParseAmount], [ParseDate] and registry.NormalizeIdentity coerce cells.
//  5. [Build] folds rows into one Member per identity and one
//     PropertyAccount per account code, accumulating transactions.
//
// Structural problems (too few lines, unresolvable header, unreadable
// encoding) abort with a [*FormatError] before anything is built. Rows that
// lack an identity or an account code are skipped and reported in
// [Batch.Skipped]; they never abort the pass. Numeric cells never fail: junk
// degrades to zero.
package importer
