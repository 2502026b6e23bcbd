// Package dataset reads the CSV feature tables that accompany each model and
// lines their columns up with the model's feature order.
//
// The first record is the header. Cells that are empty or hold a missing
// marker (NA, N/A, NaN, nan, null, NULL) become NaN, which the tree models
// route through their default branches.
package dataset
