// Package mediatypes provides shared type definitions for the gallery index:
// supported image extensions, MIME types, image sort fields and the named
// size presets used for image variants.
//
// This package has no dependencies beyond the standard library so it can be
// imported from the database, search and gallery packages without cycles.
//
// # Size Presets
//
// Variants are produced by fitting the original inside the preset box without
// ever enlarging it:
//
//	name, preset, ok := mediatypes.LookupPreset(r.URL.Query().Get("size"))
//	if !ok {
//	    // unknown preset
//	}
//	if preset.Resizes() {
//	    // resize to preset.Width x preset.Height at preset.Quality
//	}
//
// # Sorting
//
// Gallery image listings accept SortField values date, name, size and
// modified, in either SortOrder. ParseSortField and ParseSortOrder map query
// parameters to these values and fill in the defaults (date, desc).
package mediatypes
