// Package sds models the identity of files in an SDS (SeisComP Data
// Structure) archive.
//
// A file is named NET.STA.LOC.CHA.Q.YEAR.DOY and lives under
// YEAR/NET/STA/CHA.Q/. Each file covers exactly one UTC day of data for one
// stream. The previous and next neighbours of a file are the files of the
// same stream and quality for the adjacent days:
//
//	f := sds.MustParse("NL.HGN.02.BHZ.D.1970.001")
//	f.Previous() // NL.HGN.02.BHZ.D.1969.365
//	f.WithQuality(quality.Pruned) // NL.HGN.02.BHZ.Q.1970.001
//
// File values never touch the filesystem; see package inventory for that.
package sds
